package machine

import (
	"fmt"

	"github.com/loxlang/loxvm/lang/compiler"
)

// ObjectKind identifies the concrete type of a heap-allocated Object, used
// by the collector to decide how to trace and size it without a type
// switch in the hot marking path.
type ObjectKind uint8

const (
	ObjString ObjectKind = iota
	ObjFunction
	ObjNativeFunction
	ObjClosure
	ObjUpvalue
)

// Object is any heap value managed by the collector: strings, functions,
// native functions, closures and upvalues. Every concrete type embeds
// gcHeader, which threads it onto the collector's intrusive object list and
// carries the mark bit.
type Object interface {
	Kind() ObjectKind
	Size() int
	isMarked() bool
	setMarked(bool)
	nextObject() Object
	setNextObject(Object)
}

type gcHeader struct {
	marked bool
	next   Object
}

func (h *gcHeader) isMarked() bool        { return h.marked }
func (h *gcHeader) setMarked(m bool)      { h.marked = m }
func (h *gcHeader) nextObject() Object    { return h.next }
func (h *gcHeader) setNextObject(o Object) { h.next = o }

// String is an interned, immutable heap string. Two String objects with
// equal content are always the same pointer (see interner), so Value
// equality for strings can compare object pointers directly.
type String struct {
	gcHeader
	s    string
	hash uint32
}

var _ Object = (*String)(nil)

func (s *String) Kind() ObjectKind { return ObjString }
func (s *String) Size() int        { return len(s.s) + 24 }
func (s *String) Go() string       { return s.s }
func (s *String) String() string   { return s.s }

// Function is the compiled, loaded form of a function declaration: its
// bytecode (by reference to the compiler's Funcode) plus the name used in
// stack traces. It is immutable once created; CLOSURE wraps one in a
// Closure at each evaluation to bind its upvalues.
type Function struct {
	gcHeader
	Proto *compiler.Funcode
	Name  *String
}

var _ Object = (*Function)(nil)

func (f *Function) Kind() ObjectKind { return ObjFunction }
func (f *Function) Size() int        { return 48 }
func (f *Function) Arity() int       { return f.Proto.Arity }

func (f *Function) name() string {
	if f.Name == nil {
		return "script"
	}
	return f.Name.Go()
}

func (f *Function) String() string { return fmt.Sprintf("<fn %s>", f.name()) }

// NativeFn is the calling convention for natively-implemented functions: it
// receives a slice backed by the VM's value stack, valid only for the
// duration of the call.
type NativeFn func(args []Value) (Value, error)

// NativeFunction wraps a Go function exposed to script code, e.g. the
// standard library in stdlib.go.
type NativeFunction struct {
	gcHeader
	Name  string
	Arity int
	Fn    NativeFn
}

var _ Object = (*NativeFunction)(nil)

func (n *NativeFunction) Kind() ObjectKind { return ObjNativeFunction }
func (n *NativeFunction) Size() int        { return 40 }
func (n *NativeFunction) String() string   { return fmt.Sprintf("<native fn %s>", n.Name) }

// Closure pairs a Function with the upvalues it captured at the point the
// CLOSURE instruction ran.
type Closure struct {
	gcHeader
	Function *Function
	Upvalues []*Upvalue
}

var _ Object = (*Closure)(nil)

func (c *Closure) Kind() ObjectKind { return ObjClosure }
func (c *Closure) Size() int        { return 24 + 8*len(c.Upvalues) }
func (c *Closure) String() string   { return c.Function.String() }

// Upvalue is a reference to a variable captured by a closure. While open,
// Location points directly into the owning frame's stack slice; Close
// copies the current value into Closed and repoints Location at it, so
// reads/writes after the frame returns still work.
type Upvalue struct {
	gcHeader
	Location *Value
	Closed   Value
	NextOpen *Upvalue // intrusive list of open upvalues, sorted by descending stack address
}

var _ Object = (*Upvalue)(nil)

func (u *Upvalue) Kind() ObjectKind { return ObjUpvalue }
func (u *Upvalue) Size() int        { return 40 }
func (u *Upvalue) String() string   { return "upvalue" }

func (u *Upvalue) Get() Value  { return *u.Location }
func (u *Upvalue) Set(v Value) { *u.Location = v }

func (u *Upvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}
