package machine

import "github.com/loxlang/loxvm/lang/compiler"

// callFrame records one active call to a Closure: which closure is running,
// the instruction pointer into its chunk (an index into the chunk's code
// rather than a raw pointer), and the stack window its locals live in.
type callFrame struct {
	closure *Closure
	ip      int
	base    int // index into the VM's value stack of slot 0 for this frame
}

func (f *callFrame) chunk() *compiler.Chunk {
	return f.closure.Function.Proto.Chunk
}

func (f *callFrame) name() string {
	return f.closure.Function.name()
}
