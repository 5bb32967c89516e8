package compiler

import (
	"fmt"
	"io"
)

// Disassemble writes a human-readable listing of chunk to w, labeled name.
// It is never used by the VM itself, and no CLI command calls it; it exists
// only to support tests.
func Disassemble(w io.Writer, chunk *Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := 0; offset < len(chunk.Code); {
		offset = DisassembleInstruction(w, chunk, offset)
	}
}

// DisassembleInstruction writes a single instruction starting at offset and
// returns the offset of the next instruction.
func DisassembleInstruction(w io.Writer, chunk *Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)
	if offset > 0 && chunk.LineAt(offset) == chunk.LineAt(offset-1) {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", chunk.LineAt(offset))
	}

	op := OpCode(chunk.Code[offset])

	if op == CLOSURE {
		idx := chunk.ReadU32(offset + 1)
		fmt.Fprintf(w, "%-16s %4d ", op, idx)
		if int(idx) < len(chunk.Constants) {
			if fn, ok := chunk.Constants[idx].(*Funcode); ok {
				fmt.Fprintf(w, "<fn %s>", fn.Name)
			}
		}
		fmt.Fprintln(w)
		next := offset + 5
		if int(idx) < len(chunk.Constants) {
			if fn, ok := chunk.Constants[idx].(*Funcode); ok {
				for _, uv := range fn.Upvalues {
					kind := "upvalue"
					if uv.IsLocal {
						kind = "local"
					}
					fmt.Fprintf(w, "%04d      |                     %s %d\n", next, kind, uv.Index)
					next += 3
				}
			}
		}
		return next
	}

	switch operandSize(op) {
	case 0:
		fmt.Fprintln(w, op)
		return offset + 1
	case 1:
		arg := chunk.Code[offset+1]
		fmt.Fprintf(w, "%-16s %4d\n", op, arg)
		return offset + 2
	case 2:
		arg := chunk.ReadU16(offset + 1)
		if isJump(op) {
			sign := 1
			if op == BACKJUMP {
				sign = -1
			}
			target := offset + 3 + sign*int(arg)
			fmt.Fprintf(w, "%-16s %4d -> %d\n", op, offset, target)
		} else {
			fmt.Fprintf(w, "%-16s %4d\n", op, arg)
		}
		return offset + 3
	case 4:
		arg := chunk.ReadU32(offset + 1)
		if op == CONSTANT || op == SET_GLOBAL || op == GET_GLOBAL || op == DEFINE_GLOBAL {
			fmt.Fprintf(w, "%-16s %4d '%v'\n", op, arg, chunk.Constants[arg])
		} else {
			fmt.Fprintf(w, "%-16s %4d\n", op, arg)
		}
		return offset + 5
	default:
		fmt.Fprintf(w, "unknown operand width for %s\n", op)
		return offset + 1
	}
}
