package compiler

import "github.com/loxlang/loxvm/lang/token"

// precedence orders binding strength from loosest to tightest, matching the
// canonical reference compiler's table exactly (equality is spelled "is" /
// "is not" rather than "=="/"!=", but occupies the same precedence level).
type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

type (
	prefixFn func(c *Compiler, canAssign bool)
	infixFn  func(c *Compiler, canAssign bool)
)

type parseRule struct {
	prefix prefixFn
	infix  infixFn
	prec   precedence
}

var rules = map[token.Token]parseRule{
	token.LPAREN:   {prefix: grouping, infix: call, prec: precCall},
	token.MINUS:    {prefix: unary, infix: binary, prec: precTerm},
	token.PLUS:     {infix: binary, prec: precTerm},
	token.SLASH:    {infix: binary, prec: precFactor},
	token.STAR:     {infix: binary, prec: precFactor},
	token.NOT:      {prefix: unary},
	token.IS:       {infix: isExpr, prec: precEquality},
	token.LT:       {infix: binary, prec: precComparison},
	token.LE:       {infix: binary, prec: precComparison},
	token.GT:       {infix: binary, prec: precComparison},
	token.GE:       {infix: binary, prec: precComparison},
	token.IDENT:    {prefix: variable},
	token.STRING:   {prefix: strLiteral},
	token.NUMBER:   {prefix: number},
	token.AND:      {infix: and_, prec: precAnd},
	token.OR:       {infix: or_, prec: precOr},
	token.TRUE:     {prefix: literal},
	token.FALSE:    {prefix: literal},
	token.NONE:     {prefix: literal},
}

func getRule(k token.Token) parseRule { return rules[k] }

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefix := getRule(c.previous.Kind).prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := prec <= precAssignment
	prefix(c, canAssign)

	for prec <= getRule(c.current.Kind).prec {
		c.advance()
		infix := getRule(c.previous.Kind).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.EQ) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after expression.")
}

func unary(c *Compiler, _ bool) {
	op := c.previous.Kind
	c.parsePrecedence(precUnary)
	switch op {
	case token.MINUS:
		c.emitOp(NEGATE)
	case token.NOT:
		c.emitOp(NOT)
	}
}

func binary(c *Compiler, _ bool) {
	op := c.previous.Kind
	rule := getRule(op)
	c.parsePrecedence(rule.prec + 1)
	switch op {
	case token.PLUS:
		c.emitOp(ADD)
	case token.MINUS:
		c.emitOp(SUBTRACT)
	case token.STAR:
		c.emitOp(MULTIPLY)
	case token.SLASH:
		c.emitOp(DIVIDE)
	case token.LT:
		c.emitOp(LESS)
	case token.LE:
		c.emitOp(LESS_EQUAL)
	case token.GT:
		c.emitOp(GREATER)
	case token.GE:
		c.emitOp(GREATER_EQUAL)
	}
}

// isExpr handles "is" and the two-word operator "is not", the language's
// spelling for equality and inequality.
func isExpr(c *Compiler, _ bool) {
	negate := c.match(token.NOT)
	c.parsePrecedence(precEquality + 1)
	if negate {
		c.emitOp(IS_NOT)
	} else {
		c.emitOp(IS)
	}
}

func literal(c *Compiler, _ bool) {
	switch c.previous.Kind {
	case token.TRUE:
		c.emitOp(TRUE)
	case token.FALSE:
		c.emitOp(FALSE)
	case token.NONE:
		c.emitOp(NONE)
	}
}

func number(c *Compiler, _ bool) {
	v, err := parseNumber(c.previous.Lexeme)
	if err != nil {
		c.error("Invalid number literal.")
		return
	}
	c.emitConstant(v)
}

func strLiteral(c *Compiler, _ bool) {
	c.emitConstant(c.previous.Lexeme)
}

func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(JUMP_IF_FALSE)
	c.emitOp(POP)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(JUMP_IF_FALSE)
	endJump := c.emitJump(JUMP)
	c.patchJump(elseJump)
	c.emitOp(POP)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func variable(c *Compiler, canAssign bool) {
	c.namedVariable(c.previous.Lexeme, canAssign)
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp OpCode
	var localArg uint16
	var globalArg uint32
	isGlobal := false

	if slot, ok := c.resolveLocal(name); ok {
		getOp, setOp, localArg = GET_LOCAL, SET_LOCAL, uint16(slot)
	} else if up, ok := c.resolveUpvalue(name); ok {
		getOp, setOp, localArg = GET_UPVALUE, SET_UPVALUE, uint16(up)
	} else {
		getOp, setOp = GET_GLOBAL, SET_GLOBAL
		globalArg = c.identifierConstant(name)
		isGlobal = true
	}

	emitGet := func() {
		if isGlobal {
			c.emitOpU32(getOp, globalArg)
		} else {
			c.emitOpU16(getOp, localArg)
		}
	}
	emitSet := func() {
		if isGlobal {
			c.emitOpU32(setOp, globalArg)
		} else {
			c.emitOpU16(setOp, localArg)
		}
	}

	switch {
	case canAssign && c.match(token.EQ):
		c.expression()
		emitSet()
	case canAssign && c.match(token.PLUS_EQ):
		emitGet()
		c.expression()
		c.emitOp(ADD)
		emitSet()
	case canAssign && c.match(token.MINUS_EQ):
		emitGet()
		c.expression()
		c.emitOp(SUBTRACT)
		emitSet()
	case canAssign && c.match(token.STAR_EQ):
		emitGet()
		c.expression()
		c.emitOp(MULTIPLY)
		emitSet()
	case canAssign && c.match(token.SLASH_EQ):
		emitGet()
		c.expression()
		c.emitOp(DIVIDE)
		emitSet()
	default:
		emitGet()
	}
}

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOp(CALL)
	c.emitByte(argCount)
}

func (c *Compiler) argumentList() byte {
	var count int
	if !c.check(token.RPAREN) {
		for {
			c.expression()
			if count == MaxFunctionArity {
				c.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "Expect ')' after arguments.")
	return byte(count)
}

// --- declarations and statements ---

func (c *Compiler) declaration() {
	switch {
	case c.match(token.FN):
		c.funDeclaration()
	case c.match(token.LET):
		c.letDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function_(TypeFunction)
	c.defineVariable(global)
}

// function_ compiles a function's parameter list and body as a child
// Compiler, then emits the CLOSURE instruction (plus its upvalue capture
// descriptors) in the enclosing compiler's chunk. previous.Lexeme at entry
// must be the function's name.
func (c *Compiler) function_(funcType FunctionType) {
	name := c.previous.Lexeme
	child := c.fork(funcType, name)

	child.beginScope()
	child.consume(token.LPAREN, "Expect '(' after function name.")
	if !child.check(token.RPAREN) {
		for {
			child.function.Arity++
			if child.function.Arity > MaxFunctionArity {
				child.errorAtCurrent("Can't have more than 255 parameters.")
			}
			paramConst := child.parseVariable("Expect parameter name.")
			child.defineVariable(paramConst)
			if !child.match(token.COMMA) {
				break
			}
		}
	}
	child.consume(token.RPAREN, "Expect ')' after parameters.")
	child.consume(token.LBRACE, "Expect '{' before function body.")
	child.block()
	fn := child.endCompiler()

	// resume parsing in the parent from wherever the child left the shared
	// scanner/token stream.
	c.previous, c.current = child.previous, child.current

	idx, ok := c.chunk().AddConstant(fn)
	if !ok {
		c.error("Too many constants in one chunk.")
		return
	}
	c.emitOpU32(CLOSURE, idx)
	for _, uv := range fn.Upvalues {
		isLocal := byte(0)
		if uv.IsLocal {
			isLocal = 1
		}
		c.emitByte(isLocal)
		c.emitU16(uv.Index)
	}
}

func (c *Compiler) letDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(token.EQ) {
		c.expression()
	} else {
		c.emitOp(NONE)
	}
	c.consume(token.SEMI, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.RETURN):
		c.returnStatement()
	case c.match(token.CONTINUE):
		c.continueStatement()
	case c.match(token.BREAK):
		c.breakStatement()
	case c.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RBRACE, "Expect '}' after block.")
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMI, "Expect ';' after expression.")
	c.emitOp(POP)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LPAREN, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	thenJump := c.emitJump(JUMP_IF_FALSE)
	c.emitOp(POP)
	c.statement()

	elseJump := c.emitJump(JUMP)
	c.patchJump(thenJump)
	c.emitOp(POP)

	if c.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := c.chunk().Len()
	enclosing := c.loop
	c.loop = &loopState{start: loopStart, scopeDepth: c.scopeDepth}

	c.consume(token.LPAREN, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	exitJump := c.emitJump(JUMP_IF_FALSE)
	c.emitOp(POP)
	c.statement()
	c.emitBackjump(loopStart)

	c.patchJump(exitJump)
	c.emitOp(POP)
	for _, j := range c.loop.breakJumps {
		c.patchJump(j)
	}
	c.loop = enclosing
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LPAREN, "Expect '(' after 'for'.")

	switch {
	case c.match(token.SEMI):
		// no initializer
	case c.match(token.LET):
		c.letDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := c.chunk().Len()
	exitJump := -1
	if !c.match(token.SEMI) {
		c.expression()
		c.consume(token.SEMI, "Expect ';' after loop condition.")
		exitJump = c.emitJump(JUMP_IF_FALSE)
		c.emitOp(POP)
	}

	if !c.check(token.RPAREN) {
		bodyJump := c.emitJump(JUMP)
		incrementStart := c.chunk().Len()
		c.expression()
		c.emitOp(POP)
		c.consume(token.RPAREN, "Expect ')' after for clauses.")

		c.emitBackjump(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	} else {
		c.consume(token.RPAREN, "Expect ')' after for clauses.")
	}

	enclosing := c.loop
	c.loop = &loopState{start: loopStart, scopeDepth: c.scopeDepth}

	c.statement()
	c.emitBackjump(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(POP)
	}
	for _, j := range c.loop.breakJumps {
		c.patchJump(j)
	}
	c.loop = enclosing

	c.endScope()
}

func (c *Compiler) continueStatement() {
	if c.loop == nil {
		c.error("Can't use 'continue' outside of a loop.")
		return
	}
	c.consume(token.SEMI, "Expect ';' after 'continue'.")
	c.emitDiscardLocalsAbove(c.loop.scopeDepth)
	c.emitBackjump(c.loop.start)
}

func (c *Compiler) breakStatement() {
	if c.loop == nil {
		c.error("Can't use 'break' outside of a loop.")
		return
	}
	c.consume(token.SEMI, "Expect ';' after 'break'.")
	c.emitDiscardLocalsAbove(c.loop.scopeDepth)
	j := c.emitJump(JUMP)
	c.loop.breakJumps = append(c.loop.breakJumps, j)
}

func (c *Compiler) returnStatement() {
	if c.funcType == TypeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(token.SEMI) {
		c.emitReturn()
		return
	}
	c.expression()
	c.consume(token.SEMI, "Expect ';' after return value.")
	c.emitOp(RETURN)
}
