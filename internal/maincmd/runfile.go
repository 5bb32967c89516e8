package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"
)

// runFile reads path and interprets it as a single program, the file-mode
// counterpart to repl.
func runFile(ctx context.Context, stdio mainer.Stdio, cfg Config, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	vm := newVM(cfg)
	return vm.Interpret(ctx, src)
}
