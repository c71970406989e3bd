package confirm_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/foomo/posstore/pkg/confirm"
	"github.com/stretchr/testify/assert"
)

func TestDestructive(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		c    confirm.Confirmer
		want bool
	}{
		{name: "nil", c: nil, want: false},
		{name: "declined", c: confirm.No(), want: false},
		{name: "confirmed without phrase", c: confirm.Static{Yes: true}, want: false},
		{name: "mistyped phrase", c: confirm.Yes("delete"), want: false},
		{name: "phrase with spaces", c: confirm.Yes(" DELETE"), want: false},
		{name: "confirmed", c: confirm.Yes(confirm.Phrase), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, confirm.Destructive(ctx, tt.c, "Delete everything?", confirm.Phrase))
		})
	}
}

func TestTerminal(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "yes and phrase", input: "y\nDELETE\n", want: true},
		{name: "yes and phrase without newline", input: "yes\nDELETE", want: true},
		{name: "no", input: "n\nDELETE\n", want: false},
		{name: "empty answer", input: "\n", want: false},
		{name: "wrong phrase", input: "y\ndelete\n", want: false},
		{name: "eof", input: "y\n", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			term := confirm.NewTerminal(strings.NewReader(tt.input), &out)
			assert.Equal(t, tt.want, confirm.Destructive(ctx, term, "Delete everything?", confirm.Phrase))
			assert.Contains(t, out.String(), "Delete everything? [y/N]: ")
		})
	}
}

func TestTerminal_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	term := confirm.NewTerminal(strings.NewReader("y\n"), &bytes.Buffer{})
	assert.False(t, term.Confirm(ctx, "Restore?"))
}
