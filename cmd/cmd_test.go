package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(append(args, "--log-level", "error"))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	assert.Equal(t, "latest\n", run(t, "", "version"))
}

func TestExportImportClearCommands(t *testing.T) {
	var (
		dataDir   = t.TempDir()
		backupDir = t.TempDir()
		outDir    = t.TempDir()
		storage   = []string{"--data-dir", dataDir, "--backup-dir", backupDir}
	)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "products"), []byte(`[{"id":1}]`), 0600))

	filename := strings.TrimSpace(run(t, "", append([]string{"export", "--out", outDir}, storage...)...))
	assert.FileExists(t, filename)
	assert.True(t, strings.HasPrefix(filepath.Base(filename), "pos-backup-"))

	out := run(t, "n\n", append([]string{"clear"}, storage...)...)
	assert.Contains(t, out, "nothing deleted")
	assert.FileExists(t, filepath.Join(dataDir, "products"))

	out = run(t, "y\nDELETE\n", append([]string{"clear"}, storage...)...)
	assert.Contains(t, out, "all data deleted")
	assert.NoFileExists(t, filepath.Join(dataDir, "products"))

	out = run(t, "no\n", append([]string{"import", filename}, storage...)...)
	assert.Contains(t, out, "restore cancelled")
	assert.NoFileExists(t, filepath.Join(dataDir, "products"))

	out = run(t, "", append([]string{"import", "--latest", "--yes"}, storage...)...)
	assert.Contains(t, out, "reloadRequired")
	data, err := os.ReadFile(filepath.Join(dataDir, "products"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1}]`, string(data))
}

func TestImportRequiresSource(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"import", "--data-dir", t.TempDir(), "--backup-dir", t.TempDir()})
	cmd.SetOut(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestIsValidBlobScheme(t *testing.T) {
	assert.True(t, isValidBlobScheme("gs://bucket"))
	assert.True(t, isValidBlobScheme("mem://"))
	assert.False(t, isValidBlobScheme("ftp://bucket"))
	assert.Equal(t, "AWS S3", detectBlobProvider("s3://bucket"))
}
