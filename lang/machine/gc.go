package machine

import "github.com/loxlang/loxvm/lang/compiler"

// GCHeapGrowFactor is the multiple applied to the live-byte count after a
// collection to decide when the next one runs.
const GCHeapGrowFactor = 2

const initialNextCollect = 1024 * 1024

// Roots is implemented by whatever owns the GC-visible state outside the
// object heap itself -- the VM's stack, globals table, call frames and open
// upvalue list. Collect asks it to mark everything reachable from there
// before tracing the object graph.
type Roots interface {
	MarkRoots(gc *GC)
}

// GC is a precise, non-generational, stop-the-world mark-sweep collector.
// Every heap Object is threaded onto objectsHead as it is allocated; Collect
// walks outward from the registered Roots, then frees anything left
// unmarked. Collection is triggered from each allocation site
// (track) rather than through a global allocator hook, since Go offers no
// allocator override.
type GC struct {
	running        bool
	bytesAllocated int
	nextCollect    int
	objectsHead    Object
	strings        *interner
	roots          Roots
	gray           []Object

	growFactor int  // defaults to GCHeapGrowFactor; overridable from configuration
	stress     bool // collect on every allocation instead of waiting for nextCollect
}

func NewGC() *GC {
	return &GC{
		nextCollect: initialNextCollect,
		strings:     newInterner(),
		growFactor:  GCHeapGrowFactor,
	}
}

// SetRoots registers the mark source. The VM calls this once, after both it
// and its GC exist.
func (gc *GC) SetRoots(r Roots) { gc.roots = r }

func (gc *GC) shouldCollect() bool { return gc.stress || gc.bytesAllocated >= gc.nextCollect }

func (gc *GC) track(o Object, size int) {
	gc.bytesAllocated += size
	if gc.shouldCollect() {
		gc.Collect()
	}
	o.setNextObject(gc.objectsHead)
	gc.objectsHead = o
}

// NewString returns the interned String for s, allocating one only if no
// equal string exists yet.
func (gc *GC) NewString(s string) *String {
	return gc.strings.intern(s, func(s string, hash uint32) *String {
		str := &String{s: s, hash: hash}
		gc.track(str, str.Size())
		return str
	})
}

// ConcatStrings interns the concatenation of a and b.
func (gc *GC) ConcatStrings(a, b *String) *String {
	return gc.NewString(a.s + b.s)
}

func (gc *GC) NewFunction(proto *compiler.Funcode, name *String) *Function {
	f := &Function{Proto: proto, Name: name}
	gc.track(f, f.Size())
	return f
}

func (gc *GC) NewNativeFunction(name string, arity int, fn NativeFn) *NativeFunction {
	n := &NativeFunction{Name: name, Arity: arity, Fn: fn}
	gc.track(n, n.Size())
	return n
}

func (gc *GC) NewClosure(fn *Function, upvalues []*Upvalue) *Closure {
	c := &Closure{Function: fn, Upvalues: upvalues}
	gc.track(c, c.Size())
	return c
}

func (gc *GC) NewUpvalue(location *Value) *Upvalue {
	u := &Upvalue{Location: location}
	gc.track(u, u.Size())
	return u
}

// MarkValue marks v's underlying object, if it has one.
func (gc *GC) MarkValue(v Value) {
	if v.IsObject() {
		gc.MarkObject(v.AsObject())
	}
}

// MarkObject marks o and, for anything but a string or native function,
// pushes it onto the gray worklist for later tracing. Strings have no
// outgoing references and native functions reference only Go closures the
// collector does not manage, so both are marked without being traced.
func (gc *GC) MarkObject(o Object) {
	if o == nil || o.isMarked() {
		return
	}
	switch o.Kind() {
	case ObjNativeFunction, ObjString:
		o.setMarked(true)
		return
	}
	o.setMarked(true)
	gc.gray = append(gc.gray, o)
}

func (gc *GC) blacken(o Object) {
	switch v := o.(type) {
	case *Upvalue:
		gc.MarkValue(v.Get())
	case *Function:
		// Proto.Chunk.Constants holds raw compiler-level values (numbers, strings,
		// nested Funcodes); none of them are heap Objects until the VM turns
		// them into a Value at CONSTANT/CLOSURE, so there is nothing further
		// to trace here besides the function's own display name.
		if v.Name != nil {
			gc.MarkObject(v.Name)
		}
	case *Closure:
		gc.MarkObject(v.Function)
		for _, up := range v.Upvalues {
			gc.MarkObject(up)
		}
	}
}

func (gc *GC) traceObjects() {
	for len(gc.gray) > 0 {
		o := gc.gray[len(gc.gray)-1]
		gc.gray = gc.gray[:len(gc.gray)-1]
		gc.blacken(o)
	}
}

func (gc *GC) sweep() {
	var prev Object
	obj := gc.objectsHead
	for obj != nil {
		if obj.isMarked() {
			obj.setMarked(false)
			prev = obj
			obj = obj.nextObject()
			continue
		}
		dead := obj
		obj = obj.nextObject()
		if prev != nil {
			prev.setNextObject(obj)
		} else {
			gc.objectsHead = obj
		}
		gc.bytesAllocated -= dead.Size()
	}
}

// Collect runs one full mark-sweep cycle: mark roots, trace the object
// graph, drop dead interned strings, then sweep the rest of the heap. It is
// re-entrant-safe: a collection triggered while one is already running
// (possible if marking itself had to allocate) is a no-op.
func (gc *GC) Collect() {
	if gc.running || gc.roots == nil {
		return
	}
	gc.running = true
	gc.roots.MarkRoots(gc)
	gc.traceObjects()
	gc.strings.sweep()
	gc.sweep()
	gc.nextCollect = gc.bytesAllocated * gc.growFactor
	if gc.nextCollect < initialNextCollect {
		gc.nextCollect = initialNextCollect
	}
	gc.running = false
}
