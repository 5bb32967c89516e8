// Package compiler implements a single-pass Pratt-parser compiler: it
// scans and parses source text and emits bytecode directly, with no
// intermediate syntax tree. A per-function Compiler forks a child Compiler
// for nested function bodies, sharing the scanner, with locals and
// upvalues resolved by walking the chain of enclosing compilers.
package compiler

import (
	"math"
	"strconv"

	"github.com/loxlang/loxvm/lang/scanner"
	"github.com/loxlang/loxvm/lang/token"
	"golang.org/x/exp/slices"
)

// MaxFunctionArity is the maximum number of parameters a function may
// declare.
const MaxFunctionArity = 255

// MaxLocals is the maximum number of local variables (including parameters)
// live at once in a single function.
const MaxLocals = 1024

// MaxUpvalues is the maximum number of variables a single function may
// capture from enclosing functions.
const MaxUpvalues = 255

// FunctionType distinguishes the implicit top-level script function from
// user-declared functions; only the latter may contain a return statement.
type FunctionType int

const (
	TypeScript FunctionType = iota
	TypeFunction
)

// UpvalueDesc describes how a closure captures one free variable: either
// directly off the enclosing function's stack frame (IsLocal) or by
// forwarding one of the enclosing function's own upvalues.
type UpvalueDesc struct {
	Index   uint16
	IsLocal bool
}

// Funcode is the compiled representation of a single function body: its
// bytecode chunk, declared name and arity, and the upvalues it captures from
// enclosing scopes. The machine package's Function wraps a *Funcode, and a
// Closure binds that Function to its captured upvalues at the point a
// CLOSURE instruction runs.
type Funcode struct {
	Chunk    *Chunk
	Name     string
	Arity    int
	Upvalues []UpvalueDesc
}

type local struct {
	name       string
	depth      int // -1 while declared but not yet initialized
	isCaptured bool
}

type loopState struct {
	start      int // chunk offset the loop condition/body restarts at
	scopeDepth int // scope depth active when the loop started, for continue/break
	breakJumps []int
}

// Compiler holds the state for compiling one function body. Nested function
// literals fork a child Compiler that keeps a pointer back to its enclosing
// Compiler, used to resolve upvalues by walking outward.
type Compiler struct {
	scanner *scanner.Scanner

	previous scanner.Tok
	current  scanner.Tok

	enclosing *Compiler
	function  *Funcode
	funcType  FunctionType

	locals     []local
	upvalues   []UpvalueDesc
	scopeDepth int
	loop       *loopState

	panicMode bool
	errs      *CompileError
}

// Compile compiles src as the top-level script and returns its Funcode. If
// any compile errors were encountered, it returns nil and a *CompileError
// aggregating all of them.
func Compile(src []byte) (*Funcode, error) {
	c := &Compiler{
		scanner:  scanner.New(src),
		function: &Funcode{Chunk: NewChunk(), Name: ""},
		funcType: TypeScript,
		errs:     &CompileError{},
	}
	// slot 0 is reserved for the running closure itself, see call convention
	// in lang/machine.
	c.locals = append(c.locals, local{name: "", depth: 0})

	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	fn := c.endCompiler()
	if len(c.errs.Errors) > 0 {
		return nil, c.errs
	}
	return fn, nil
}

func (c *Compiler) fork(funcType FunctionType, name string) *Compiler {
	child := &Compiler{
		scanner:   c.scanner,
		previous:  c.previous,
		current:   c.current,
		enclosing: c,
		function:  &Funcode{Chunk: NewChunk(), Name: name},
		funcType:  funcType,
		errs:      c.errs,
	}
	child.locals = append(child.locals, local{name: "", depth: 0})
	return child
}

// --- token stream helpers ---

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scanner.Scan()
		if c.current.Kind != token.ILLEGAL {
			break
		}
		if c.current.Err != "" {
			c.errorAtCurrent(c.current.Err)
		} else {
			c.errorAtCurrent("Unexpected character.")
		}
	}
}

func (c *Compiler) check(k token.Token) bool { return c.current.Kind == k }

func (c *Compiler) match(k token.Token) bool {
	if !c.check(k) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(k token.Token, msg string) {
	if c.check(k) {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) error(msg string)          { c.errorAt(c.previous, msg) }

func (c *Compiler) errorAt(tok scanner.Tok, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.errs.add(tok.Line, msg)
}

func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Kind != token.EOF {
		if c.previous.Kind == token.SEMI {
			return
		}
		switch c.current.Kind {
		case token.FN, token.LET, token.FOR, token.IF, token.WHILE, token.RETURN:
			return
		}
		c.advance()
	}
}

// --- bytecode emission ---

func (c *Compiler) chunk() *Chunk { return c.function.Chunk }

func (c *Compiler) emitByte(b byte) int {
	return c.chunk().WriteByte(b, c.previous.Line)
}

func (c *Compiler) emitOp(op OpCode) int {
	return c.chunk().WriteOp(op, c.previous.Line)
}

func (c *Compiler) emitU16(v uint16) {
	c.chunk().WriteU16(v, c.previous.Line)
}

func (c *Compiler) emitOpU16(op OpCode, v uint16) {
	c.emitOp(op)
	c.emitU16(v)
}

func (c *Compiler) emitU32(v uint32) {
	c.chunk().WriteU32(v, c.previous.Line)
}

func (c *Compiler) emitOpU32(op OpCode, v uint32) {
	c.emitOp(op)
	c.emitU32(v)
}

func (c *Compiler) emitConstant(value any) {
	idx, ok := c.chunk().AddConstant(value)
	if !ok {
		c.error("Too many constants in one chunk.")
		return
	}
	c.emitOpU32(CONSTANT, idx)
}

// emitJump emits op followed by a placeholder 2-byte offset and returns the
// offset of the placeholder, to be patched later by patchJump.
func (c *Compiler) emitJump(op OpCode) int {
	c.emitOp(op)
	off := c.chunk().Len()
	c.emitU16(0)
	return off
}

func (c *Compiler) patchJump(offset int) {
	jump := c.chunk().Len() - offset - 2
	if jump > math.MaxUint16 {
		c.error("Too much code to jump over.")
		return
	}
	c.chunk().PatchU16(offset, uint16(jump))
}

// emitBackjump emits a BACKJUMP instruction that, when executed, moves the
// instruction pointer back to loopStart.
func (c *Compiler) emitBackjump(loopStart int) {
	c.emitOp(BACKJUMP)
	off := c.chunk().Len()
	c.emitU16(0)
	offset := c.chunk().Len() - loopStart
	if offset > math.MaxUint16 {
		c.error("Too much code to jump over.")
		return
	}
	c.chunk().PatchU16(off, uint16(offset))
}

func (c *Compiler) emitReturn() {
	c.emitOp(NONE)
	c.emitOp(RETURN)
}

func (c *Compiler) endCompiler() *Funcode {
	c.emitReturn()
	c.function.Upvalues = c.upvalues
	return c.function
}

// --- scopes and locals ---

func (c *Compiler) beginScope() { c.scopeDepth++ }

// emitDiscardLocalsAbove pops (or, for captured locals, closes) every local
// declared deeper than depth, in reverse declaration order, without
// otherwise touching the compiler's bookkeeping. Used both by endScope and
// by continue/break, which must discard the current block's locals without
// ending the enclosing scope.
func (c *Compiler) emitDiscardLocalsAbove(depth int) {
	run := 0
	flush := func() {
		switch {
		case run == 1:
			c.emitOp(POP)
		case run > 1:
			c.emitOpU16(POPN, uint16(run))
		}
		run = 0
	}
	for i := len(c.locals) - 1; i >= 0 && c.locals[i].depth > depth; i-- {
		if c.locals[i].isCaptured {
			flush()
			c.emitOp(CLOSE_UPVALUE)
		} else {
			run++
		}
	}
	flush()
}

func (c *Compiler) endScope() {
	depth := c.scopeDepth
	c.scopeDepth--
	c.emitDiscardLocalsAbove(depth - 1)
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (c *Compiler) identifierConstant(name string) uint32 {
	idx, ok := c.chunk().AddConstant(name)
	if !ok {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return idx
}

func (c *Compiler) addLocal(name string) {
	if len(c.locals) >= MaxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.locals = append(c.locals, local{name: name, depth: -1})
}

func (c *Compiler) declareVariable(name string) {
	if c.scopeDepth == 0 {
		return
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == name {
			c.error("Already a variable with this name in this scope.")
			return
		}
	}
	c.addLocal(name)
}

func (c *Compiler) parseVariable(errMsg string) uint32 {
	c.consume(token.IDENT, errMsg)
	name := c.previous.Lexeme
	c.declareVariable(name)
	if c.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(name)
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

func (c *Compiler) defineVariable(global uint32) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpU32(DEFINE_GLOBAL, global)
}

func (c *Compiler) resolveLocal(name string) (int, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			if c.locals[i].depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i, true
		}
	}
	return 0, false
}

func (c *Compiler) addUpvalue(index uint16, isLocal bool) uint16 {
	if i := slices.IndexFunc(c.upvalues, func(uv UpvalueDesc) bool {
		return uv.Index == index && uv.IsLocal == isLocal
	}); i >= 0 {
		return uint16(i)
	}
	if len(c.upvalues) >= MaxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}
	c.upvalues = append(c.upvalues, UpvalueDesc{Index: index, IsLocal: isLocal})
	return uint16(len(c.upvalues) - 1)
}

func (c *Compiler) resolveUpvalue(name string) (int, bool) {
	if c.enclosing == nil {
		return 0, false
	}
	if local, ok := c.enclosing.resolveLocal(name); ok {
		c.enclosing.locals[local].isCaptured = true
		return int(c.addUpvalue(uint16(local), true)), true
	}
	if up, ok := c.enclosing.resolveUpvalue(name); ok {
		return int(c.addUpvalue(uint16(up), false)), true
	}
	return 0, false
}

func parseNumber(lexeme string) (float64, error) {
	return strconv.ParseFloat(lexeme, 64)
}
