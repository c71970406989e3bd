// Package confirm gates destructive operations behind explicit user confirmation.
package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Phrase must be typed to confirm wiping all data.
const Phrase = "DELETE"

// Confirmer asks the user before a destructive operation.
type Confirmer interface {
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, message string) bool
	// Prompt asks for a line of text; ok is false when the user cancelled.
	Prompt(ctx context.Context, message string) (answer string, ok bool)
}

// Destructive runs the two step confirmation: a yes/no question followed by
// typing phrase. Both steps must succeed.
func Destructive(ctx context.Context, c Confirmer, message, phrase string) bool {
	if c == nil || !c.Confirm(ctx, message) {
		return false
	}
	answer, ok := c.Prompt(ctx, fmt.Sprintf("Type %q to confirm", phrase))
	return ok && answer == phrase
}

// ------------------------------------------------------------------------------------------------
// ~ Static
// ------------------------------------------------------------------------------------------------

// Static answers with fixed values, e.g. taken from an API request.
type Static struct {
	Yes    bool
	Answer string
}

// Yes confirms yes/no questions and types phrase when prompted.
func Yes(phrase string) Static {
	return Static{Yes: true, Answer: phrase}
}

// No declines everything.
func No() Static {
	return Static{}
}

func (s Static) Confirm(context.Context, string) bool {
	return s.Yes
}

func (s Static) Prompt(context.Context, string) (string, bool) {
	return s.Answer, s.Yes
}

// ------------------------------------------------------------------------------------------------
// ~ Terminal
// ------------------------------------------------------------------------------------------------

// Terminal asks on an interactive terminal.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
	mu  sync.Mutex
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		in:  bufio.NewReader(in),
		out: out,
	}
}

func (t *Terminal) Confirm(ctx context.Context, message string) bool {
	answer, ok := t.Prompt(ctx, message+" [y/N]")
	if !ok {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (t *Terminal) Prompt(ctx context.Context, message string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ctx.Err() != nil {
		return "", false
	}
	if _, err := fmt.Fprintf(t.out, "%s: ", message); err != nil {
		return "", false
	}
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", false
	}
	return strings.TrimSpace(line), true
}
