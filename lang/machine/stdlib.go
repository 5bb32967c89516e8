package machine

import (
	"fmt"
	"time"
)

var processStart = time.Now()

// registerStdlib installs the natives every VM starts with, one
// NativeFunction per module (print, time, string conversion) into the VM's
// global table.
func registerStdlib(vm *VM) {
	vm.RegisterNative("print_line", 1, nativePrintLine)
	vm.RegisterNative("time_since_start", 0, nativeTimeSinceStart)
	vm.RegisterNative("str", 1, vm.nativeStr)
}

func nativePrintLine(args []Value) (Value, error) {
	fmt.Println(args[0].String())
	return NoneValue, nil
}

func nativeTimeSinceStart(args []Value) (Value, error) {
	return Number(time.Since(processStart).Seconds()), nil
}

func (vm *VM) nativeStr(args []Value) (Value, error) {
	if args[0].IsString() {
		return args[0], nil
	}
	return Obj(vm.gc.NewString(args[0].String())), nil
}
