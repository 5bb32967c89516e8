package machine

import "strings"

// RuntimeError is returned by Interpret when execution fails after a successful
// compile: a type error, an undefined variable, a bad call, an overflowed
// call stack. It carries the call stack at the point of failure so the
// caller can render a trace, the counterpart to compiler.CompileError.
type RuntimeError struct {
	Msg   string
	Trace []string // one "[line N] in <name>" entry per active call frame, innermost first
}

func (e *RuntimeError) Error() string {
	if len(e.Trace) == 0 {
		return e.Msg
	}
	var b strings.Builder
	b.WriteString(e.Msg)
	for _, line := range e.Trace {
		b.WriteByte('\n')
		b.WriteString(line)
	}
	return b.String()
}
