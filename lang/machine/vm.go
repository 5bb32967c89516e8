package machine

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/dolthub/swiss"
	"github.com/loxlang/loxvm/lang/compiler"
)

// addr returns a comparable, orderable address for a *Value, used to keep
// the open-upvalue list sorted by stack depth; Go pointers support only ==
// and !=, so ordering goes through uintptr the same way the canonical VM
// compares raw stack pointers.
func addr(p *Value) uintptr { return uintptr(unsafe.Pointer(p)) }

// StackMax and MaxCallFrames bound the VM's fixed-capacity stacks.
const (
	StackMax      = 1024
	MaxCallFrames = 256
)

// VM executes compiled Funcodes. It owns the garbage-collected heap (via its
// GC), the value stack, the call-frame stack, the global-variable table and
// the list of upvalues still open (pointing into a live stack frame rather
// than holding their own copy).
type VM struct {
	gc      *GC
	stack   []Value // fixed-length backing array (len==cap==StackMax), live region is stack[:sp]
	sp      int
	frames  []callFrame
	globals *swiss.Map[*String, Value]
	openUV  *Upvalue // head of the open-upvalue list, sorted by descending stack address

	// MaxSteps bounds the number of instructions a single Interpret call will
	// execute before aborting with a runtime error; <= 0 means unlimited.
	// Checked periodically (stepCheckInterval) rather than every opcode, to
	// keep the hot dispatch loop cheap.
	MaxSteps int
	steps    uint64
}

const stepCheckInterval = 1 << 12

// New returns a VM with an empty global table and the standard library
// already registered.
func New() *VM {
	vm := &VM{
		gc:      NewGC(),
		stack:   make([]Value, StackMax),
		frames:  make([]callFrame, 0, MaxCallFrames),
		globals: swiss.NewMap[*String, Value](64),
	}
	vm.gc.SetRoots(vm)
	registerStdlib(vm)
	return vm
}

// SetHeapGrowFactor overrides the collector's default heap-grow factor,
// e.g. from configuration.
func (vm *VM) SetHeapGrowFactor(factor int) { vm.gc.growFactor = factor }

// SetStressGC makes the collector run before every single allocation
// instead of only once bytesAllocated crosses nextCollect, for shaking out
// GC-related bugs in tests and debugging sessions.
func (vm *VM) SetStressGC(stress bool) { vm.gc.stress = stress }

// RegisterNative installs a native function in the global table, callable
// from script code by name.
func (vm *VM) RegisterNative(name string, arity int, fn NativeFn) {
	nameStr := vm.gc.NewString(name)
	native := vm.gc.NewNativeFunction(name, arity, fn)
	vm.globals.Put(nameStr, Obj(native))
}

// push and friends index a fixed-length backing array rather than using
// append, so the array is never reallocated: open Upvalues hold raw
// pointers into it (see captureUpvalue), and a reallocation would silently
// detach them from the live stack.
func (vm *VM) push(v Value) {
	if vm.sp >= StackMax {
		panic(&RuntimeError{Msg: "value stack overflow"})
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) popN(n int) {
	vm.sp -= n
}

func (vm *VM) frame() *callFrame { return &vm.frames[len(vm.frames)-1] }

// Interpret compiles src and runs it to completion. It returns a
// *compiler.CompileError if compilation fails, or a *RuntimeError if
// execution fails partway through.
func (vm *VM) Interpret(ctx context.Context, src []byte) (err error) {
	proto, cerr := compiler.Compile(src)
	if cerr != nil {
		return cerr
	}

	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(*RuntimeError)
			if !ok {
				panic(r)
			}
			err = rerr
		}
	}()

	fn := vm.gc.NewFunction(proto, nil)
	closure := vm.gc.NewClosure(fn, nil)
	vm.push(Obj(closure))
	vm.frames = append(vm.frames, callFrame{closure: closure, base: 0})

	return vm.run(ctx)
}

func (vm *VM) runtimeError(format string, args ...any) *RuntimeError {
	err := &RuntimeError{Msg: fmt.Sprintf(format, args...)}
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := &vm.frames[i]
		line := f.chunk().LineAt(f.ip - 1)
		err.Trace = append(err.Trace, fmt.Sprintf("[line %d] in %s", line, f.name()))
	}
	return err
}

func (vm *VM) readByte() byte {
	f := vm.frame()
	b := f.chunk().Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readU16() uint16 {
	f := vm.frame()
	v := f.chunk().ReadU16(f.ip)
	f.ip += 2
	return v
}

func (vm *VM) readU32() uint32 {
	f := vm.frame()
	v := f.chunk().ReadU32(f.ip)
	f.ip += 4
	return v
}

func (vm *VM) readConstant() any {
	idx := vm.readU32()
	return vm.frame().chunk().Constants[idx]
}

// internGlobalName materializes the raw string constant at the current
// instruction's operand into an interned *String, the key type used by the
// globals table.
func (vm *VM) internGlobalName() *String {
	return vm.gc.NewString(vm.readConstant().(string))
}

func (vm *VM) call(closure *Closure, argCount int) error {
	if argCount != closure.Function.Arity() {
		return vm.runtimeError("Expected %d arguments, got %d for function '%s'",
			closure.Function.Arity(), argCount, closure.Function.name())
	}
	if len(vm.frames) >= MaxCallFrames {
		return vm.runtimeError("Call stack overflow")
	}
	vm.frames = append(vm.frames, callFrame{
		closure: closure,
		base:    vm.sp - argCount - 1,
	})
	return nil
}

func (vm *VM) nativeCall(native *NativeFunction, argCount int) error {
	if argCount != native.Arity {
		return vm.runtimeError("Expected %d arguments, got %d for function '%s'",
			native.Arity, argCount, native.Name)
	}
	args := vm.stack[vm.sp-argCount : vm.sp]
	result, err := native.Fn(args)
	if err != nil {
		return vm.runtimeError("%s", err.Error())
	}
	vm.popN(argCount + 1) // args and the native function value itself
	vm.push(result)
	return nil
}

func (vm *VM) callValue(callee Value, argCount int) error {
	if callee.IsObject() {
		switch o := callee.AsObject().(type) {
		case *Closure:
			return vm.call(o, argCount)
		case *NativeFunction:
			return vm.nativeCall(o, argCount)
		}
	}
	return vm.runtimeError("'%s' not callable!", callee.String())
}

// captureUpvalue returns the open Upvalue for the stack slot at index
// (absolute into vm.stack), reusing one already open for that slot if the
// open list already has one.
func (vm *VM) captureUpvalue(index int) *Upvalue {
	target := &vm.stack[index]
	var prev *Upvalue
	uv := vm.openUV
	for uv != nil && addr(uv.Location) > addr(target) {
		prev = uv
		uv = uv.NextOpen
	}
	if uv != nil && uv.Location == target {
		return uv
	}

	created := vm.gc.NewUpvalue(&vm.stack[index])
	created.NextOpen = uv
	if prev == nil {
		vm.openUV = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues closes every open upvalue pointing at or above the given
// absolute stack index, called when a scope or call frame whose locals they
// captured is about to be discarded.
func (vm *VM) closeUpvalues(from int) {
	threshold := addr(&vm.stack[from])
	for vm.openUV != nil && addr(vm.openUV.Location) >= threshold {
		uv := vm.openUV
		uv.Close()
		vm.openUV = uv.NextOpen
	}
}

func valuesEqual(a, b Value) bool { return a.Equal(b) }

func (vm *VM) run(ctx context.Context) error {
	for {
		vm.steps++
		if vm.steps%stepCheckInterval == 0 {
			if vm.MaxSteps > 0 && vm.steps > uint64(vm.MaxSteps) {
				return vm.runtimeError("exceeded maximum step count")
			}
			select {
			case <-ctx.Done():
				return vm.runtimeError("interpreter cancelled: %s", ctx.Err())
			default:
			}
		}

		op := compiler.OpCode(vm.readByte())
		switch op {
		case compiler.CLOSE_UPVALUE:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case compiler.SET_UPVALUE:
			slot := vm.readU16()
			vm.frame().closure.Upvalues[slot].Set(vm.peek(0))

		case compiler.GET_UPVALUE:
			slot := vm.readU16()
			vm.push(vm.frame().closure.Upvalues[slot].Get())

		case compiler.CLOSURE:
			proto := vm.readConstant().(*compiler.Funcode)
			var name *String
			if proto.Name != "" {
				name = vm.gc.NewString(proto.Name)
			}
			fn := vm.gc.NewFunction(proto, name)

			upvalues := make([]*Upvalue, len(proto.Upvalues))
			for i := range proto.Upvalues {
				isLocal := vm.readByte() != 0
				index := vm.readU16()
				if isLocal {
					upvalues[i] = vm.captureUpvalue(vm.frame().base + int(index))
				} else {
					upvalues[i] = vm.frame().closure.Upvalues[index]
				}
			}

			closure := vm.gc.NewClosure(fn, upvalues)
			vm.push(Obj(closure))

		case compiler.RETURN:
			result := vm.pop()
			finished := vm.frames[len(vm.frames)-1]
			vm.frames = vm.frames[:len(vm.frames)-1]
			vm.closeUpvalues(finished.base)

			if len(vm.frames) == 0 {
				vm.pop() // the toplevel script closure
				return nil
			}
			vm.sp = finished.base
			vm.push(result)

		case compiler.CALL:
			argCount := int(vm.readByte())
			callee := vm.peek(argCount)
			if err := vm.callValue(callee, argCount); err != nil {
				return err
			}

		case compiler.BACKJUMP:
			offset := vm.readU16()
			vm.frame().ip -= int(offset)

		case compiler.JUMP:
			offset := vm.readU16()
			vm.frame().ip += int(offset)

		case compiler.JUMP_IF_TRUE:
			offset := vm.readU16()
			if !vm.peek(0).IsFalsey() {
				vm.frame().ip += int(offset)
			}

		case compiler.JUMP_IF_FALSE:
			offset := vm.readU16()
			if vm.peek(0).IsFalsey() {
				vm.frame().ip += int(offset)
			}

		case compiler.SET_LOCAL:
			slot := vm.readU16()
			vm.stack[vm.frame().base+int(slot)] = vm.peek(0)

		case compiler.GET_LOCAL:
			slot := vm.readU16()
			vm.push(vm.stack[vm.frame().base+int(slot)])

		case compiler.POPN:
			n := vm.readU16()
			vm.popN(int(n))

		case compiler.POP:
			vm.pop()

		case compiler.SET_GLOBAL:
			name := vm.internGlobalName()
			if _, ok := vm.globals.Get(name); !ok {
				return vm.runtimeError("Undefined variable '%s'", name.Go())
			}
			vm.globals.Put(name, vm.peek(0))

		case compiler.GET_GLOBAL:
			name := vm.internGlobalName()
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'", name.Go())
			}
			vm.push(v)

		case compiler.DEFINE_GLOBAL:
			name := vm.internGlobalName()
			vm.globals.Put(name, vm.peek(0))
			vm.pop()

		case compiler.CONSTANT:
			switch c := vm.readConstant().(type) {
			case float64:
				vm.push(Number(c))
			case string:
				vm.push(Obj(vm.gc.NewString(c)))
			default:
				return vm.runtimeError("invalid constant type %T", c)
			}

		case compiler.NONE:
			vm.push(NoneValue)
		case compiler.TRUE:
			vm.push(Bool(true))
		case compiler.FALSE:
			vm.push(Bool(false))

		case compiler.IS:
			b, a := vm.pop(), vm.pop()
			vm.push(Bool(valuesEqual(a, b)))
		case compiler.IS_NOT:
			b, a := vm.pop(), vm.pop()
			vm.push(Bool(!valuesEqual(a, b)))

		case compiler.GREATER, compiler.GREATER_EQUAL, compiler.LESS, compiler.LESS_EQUAL:
			b, a := vm.pop(), vm.pop()
			if !a.IsNumber() || !b.IsNumber() {
				return vm.runtimeError("operands must be numbers")
			}
			var result bool
			switch op {
			case compiler.GREATER:
				result = a.AsNumber() > b.AsNumber()
			case compiler.GREATER_EQUAL:
				result = a.AsNumber() >= b.AsNumber()
			case compiler.LESS:
				result = a.AsNumber() < b.AsNumber()
			case compiler.LESS_EQUAL:
				result = a.AsNumber() <= b.AsNumber()
			}
			vm.push(Bool(result))

		case compiler.ADD:
			b, a := vm.pop(), vm.pop()
			switch {
			case a.IsNumber() && b.IsNumber():
				vm.push(Number(a.AsNumber() + b.AsNumber()))
			case a.IsString() && b.IsString():
				vm.push(Obj(vm.gc.ConcatStrings(a.AsObject().(*String), b.AsObject().(*String))))
			default:
				return vm.runtimeError("operands must both be numbers or both be strings")
			}

		case compiler.SUBTRACT, compiler.MULTIPLY, compiler.DIVIDE:
			b, a := vm.pop(), vm.pop()
			if !a.IsNumber() || !b.IsNumber() {
				return vm.runtimeError("operands must be numbers")
			}
			var result float64
			switch op {
			case compiler.SUBTRACT:
				result = a.AsNumber() - b.AsNumber()
			case compiler.MULTIPLY:
				result = a.AsNumber() * b.AsNumber()
			case compiler.DIVIDE:
				// IEEE-754 division: a/0 produces +-Inf or NaN rather than a
				// runtime error.
				result = a.AsNumber() / b.AsNumber()
			}
			vm.push(Number(result))

		case compiler.NOT:
			vm.push(Bool(vm.pop().IsFalsey()))

		case compiler.NEGATE:
			v := vm.peek(0)
			if !v.IsNumber() {
				return vm.runtimeError("operand must be a number")
			}
			vm.stack[vm.sp-1] = Number(-v.AsNumber())

		default:
			return vm.runtimeError("unknown opcode %v", op)
		}
	}
}

// MarkRoots implements Roots: it marks the value stack, the globals table,
// the closures of every active call frame, and the still-open upvalue
// chain.
func (vm *VM) MarkRoots(gc *GC) {
	for i := 0; i < vm.sp; i++ {
		gc.MarkValue(vm.stack[i])
	}
	it := vm.globals.Iterator()
	for it.Next() {
		k, v := it.Pair()
		gc.MarkObject(k)
		gc.MarkValue(v)
	}
	for i := range vm.frames {
		gc.MarkObject(vm.frames[i].closure)
	}
	for uv := vm.openUV; uv != nil; uv = uv.NextOpen {
		gc.MarkObject(uv)
	}
}
