package compiler_test

import (
	"strings"
	"testing"

	"github.com/loxlang/loxvm/lang/compiler"
	"github.com/stretchr/testify/require"
)

func mustCompile(t *testing.T, src string) *compiler.Funcode {
	t.Helper()
	fn, err := compiler.Compile([]byte(src))
	require.NoError(t, err)
	require.NotNil(t, fn)
	return fn
}

func TestCompileLetAndExpressionStatement(t *testing.T) {
	fn := mustCompile(t, `let x = 1 + 2; x;`)
	require.NotEmpty(t, fn.Chunk.Code)
	require.Contains(t, fn.Chunk.Constants, 1.0)
	require.Contains(t, fn.Chunk.Constants, 2.0)
}

func TestCompileFunctionDeclarationEmitsClosure(t *testing.T) {
	fn := mustCompile(t, `fn add(a, b) { return a + b; } add(1, 2);`)
	var found *compiler.Funcode
	for _, c := range fn.Chunk.Constants {
		if f, ok := c.(*compiler.Funcode); ok {
			found = f
		}
	}
	require.NotNil(t, found, "expected nested Funcode constant for 'add'")
	require.Equal(t, "add", found.Name)
	require.Equal(t, 2, found.Arity)
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	fn := mustCompile(t, `
		fn outer() {
			let x = 1;
			fn inner() {
				return x;
			}
			return inner;
		}
	`)
	var outer *compiler.Funcode
	for _, c := range fn.Chunk.Constants {
		if f, ok := c.(*compiler.Funcode); ok && f.Name == "outer" {
			outer = f
		}
	}
	require.NotNil(t, outer)
	var inner *compiler.Funcode
	for _, c := range outer.Chunk.Constants {
		if f, ok := c.(*compiler.Funcode); ok && f.Name == "inner" {
			inner = f
		}
	}
	require.NotNil(t, inner)
	require.Len(t, inner.Upvalues, 1)
	require.True(t, inner.Upvalues[0].IsLocal)
}

func TestCompileReportsMultipleErrorsInPanicMode(t *testing.T) {
	_, err := compiler.Compile([]byte(`let = ; let = ;`))
	require.Error(t, err)
	cerr, ok := err.(*compiler.CompileError)
	require.True(t, ok)
	require.GreaterOrEqual(t, len(cerr.Errors), 2)
}

func TestCompileReturnOutsideFunctionIsError(t *testing.T) {
	_, err := compiler.Compile([]byte(`return 1;`))
	require.Error(t, err)
}

func TestCompileBreakOutsideLoopIsError(t *testing.T) {
	_, err := compiler.Compile([]byte(`break;`))
	require.Error(t, err)
}

func TestCompileForLoopDesugarsToJumpsAndBackjump(t *testing.T) {
	fn := mustCompile(t, `for (let i = 0; i < 10; i += 1) { i; }`)
	require.NotEmpty(t, fn.Chunk.Code)

	var listing strings.Builder
	compiler.Disassemble(&listing, fn.Chunk, "script")
	require.Contains(t, listing.String(), "jump_if_false")
	require.Contains(t, listing.String(), "backjump")
}

func TestCompileJumpTooFarIsError(t *testing.T) {
	var src strings.Builder
	src.WriteString("let x = 0;\nif (true) {\n")
	for i := 0; i < 6000; i++ {
		src.WriteString("x = x + 1;\n")
	}
	src.WriteString("}\n")

	_, err := compiler.Compile([]byte(src.String()))
	require.Error(t, err)
	cerr, ok := err.(*compiler.CompileError)
	require.True(t, ok)
	found := false
	for _, e := range cerr.Errors {
		if strings.Contains(e.Msg, "Too much code to jump over") {
			found = true
		}
	}
	require.True(t, found, "expected a jump-too-far compile error, got: %v", cerr.Errors)
}
