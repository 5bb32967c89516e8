package maincmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mna/mainer"
	"github.com/stretchr/testify/require"
)

func TestReplEchoesPromptAndReportsErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	stdio := mainer.Stdio{
		Stdin:  bytes.NewBufferString("let x = 1 + 1;\nnope;\n"),
		Stdout: &out,
		Stderr: &errOut,
	}

	err := repl(context.Background(), stdio, Config{})
	require.NoError(t, err, "repl runs to EOF rather than propagating per-line errors")
	require.Contains(t, out.String(), "> ")
	require.Contains(t, errOut.String(), "Undefined variable 'nope'")
}

func TestReplStopsOnCancelledContext(t *testing.T) {
	var out, errOut bytes.Buffer
	stdio := mainer.Stdio{
		Stdin:  bytes.NewBufferString("let x = 1;\nlet y = 2;\n"),
		Stdout: &out,
		Stderr: &errOut,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repl(ctx, stdio, Config{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunFileExecutesSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.lox")
	require.NoError(t, os.WriteFile(path, []byte(`let x = 1 + 1;`), 0o644))

	var out, errOut bytes.Buffer
	stdio := mainer.Stdio{Stdout: &out, Stderr: &errOut}

	err := runFile(context.Background(), stdio, Config{}, path)
	require.NoError(t, err)
}

func TestRunFileMissingFileIsError(t *testing.T) {
	var out, errOut bytes.Buffer
	stdio := mainer.Stdio{Stdout: &out, Stderr: &errOut}

	err := runFile(context.Background(), stdio, Config{}, filepath.Join(t.TempDir(), "missing.lox"))
	require.Error(t, err)
}

func TestRunFilePropagatesRuntimeError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.lox")
	require.NoError(t, os.WriteFile(path, []byte(`nope;`), 0o644))

	var out, errOut bytes.Buffer
	stdio := mainer.Stdio{Stdout: &out, Stderr: &errOut}

	err := runFile(context.Background(), stdio, Config{}, path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Undefined variable 'nope'")
}
