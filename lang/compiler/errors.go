package compiler

import (
	"strconv"
	"strings"
)

// CompileErrorEntry is one message produced during compilation, anchored to
// the source line that triggered it.
type CompileErrorEntry struct {
	Line int
	Msg  string
}

func (e CompileErrorEntry) String() string {
	return "[line " + strconv.Itoa(e.Line) + "] Error: " + e.Msg
}

// CompileError aggregates every error produced by a single compile pass.
// Compilation runs in panic mode: once an error is found, the parser
// resynchronizes at the next statement boundary and keeps going, so a
// single source file can report more than one error instead of stopping at
// the first.
type CompileError struct {
	Errors []CompileErrorEntry
}

func (e *CompileError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, ent := range e.Errors {
		parts[i] = ent.String()
	}
	return strings.Join(parts, "\n")
}

func (e *CompileError) add(line int, msg string) {
	e.Errors = append(e.Errors, CompileErrorEntry{Line: line, Msg: msg})
}
