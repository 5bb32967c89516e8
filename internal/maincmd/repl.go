package maincmd

import (
	"bufio"
	"context"
	"fmt"

	"github.com/loxlang/loxvm/lang/machine"
	"github.com/mna/mainer"
)

func newVM(cfg Config) *machine.VM {
	vm := machine.New()
	vm.MaxSteps = cfg.MaxSteps
	vm.SetStressGC(cfg.StressGC)
	vm.SetHeapGrowFactor(cfg.GCGrowFactor)
	return vm
}

// repl reads one line at a time from stdio.Stdin and interprets it,
// printing compile or runtime errors without exiting.
func repl(ctx context.Context, stdio mainer.Stdio, cfg Config) error {
	vm := newVM(cfg)
	scanner := bufio.NewScanner(stdio.Stdin)

	for {
		fmt.Fprint(stdio.Stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdio.Stdout)
			return scanner.Err()
		}
		if err := vm.Interpret(ctx, scanner.Bytes()); err != nil {
			fmt.Fprintln(stdio.Stderr, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
