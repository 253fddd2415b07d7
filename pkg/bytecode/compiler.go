package bytecode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/lox/compiler"
)

// ---------------------------------------------------------------------------
// Compiler: single-pass Pratt parser emitting bytecode directly
// ---------------------------------------------------------------------------

// CompileError carries every positioned message the parser reported before
// giving up. No bytecode from a failed compile is ever executed.
type CompileError struct {
	Messages []string
}

func (e *CompileError) Error() string {
	return strings.Join(e.Messages, "\n")
}

// precedence is the Pratt binding-power ladder, lowest to highest.
type precedence int

const (
	precNone precedence = iota
	precAssignment              // =
	precOr                      // or
	precAnd                     // and
	precEquality                // == !=
	precComparison              // < > <= >=
	precTerm                    // + -
	precFactor                  // * /
	precUnary                   // ! -
	precCall                    // . ()
	precPrimary
)

// parseFn is a prefix or infix parse rule. canAssign is true only when the
// surrounding precedence permits an assignment target; variable, property,
// and super rules consult it before accepting '='.
type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix parseFn
	infix  parseFn
	prec   precedence
}

// funcKind distinguishes the four compilation contexts a function body can
// appear in.
type funcKind int

const (
	kindScript funcKind = iota
	kindFunction
	kindMethod
	kindInitializer
)

// maxLocals and maxUpvalues bound the single-byte slot operands.
const (
	maxLocals   = 256
	maxUpvalues = 256
)

// local is a declared local variable. depth == -1 marks a variable that is
// declared but not yet defined (its initializer is still being compiled).
type local struct {
	name       compiler.Token
	depth      int
	isCaptured bool
}

// upvalueDesc records one captured variable of the function under
// construction: either a local slot of the enclosing function or one of the
// enclosing function's own upvalues.
type upvalueDesc struct {
	index   uint8
	isLocal bool
}

// funcCompiler is the per-function compiler state. Nested function
// declarations push a fresh funcCompiler linked through enclosing; the
// chain is a GC root while compilation runs.
type funcCompiler struct {
	enclosing  *funcCompiler
	function   *ObjFunction
	kind       funcKind
	locals     [maxLocals]local
	localCount int
	upvalues   [maxUpvalues]upvalueDesc
	scopeDepth int
}

// classCompiler tracks the innermost class declaration being compiled, for
// validating this/super usage.
type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// Compiler drives a lexer and emits bytecode into the chunk of the current
// funcCompiler. One Compiler instance handles one compile call; nested
// functions share it and swap the funcCompiler chain.
type Compiler struct {
	vm    *VM
	lexer *compiler.Lexer

	current  compiler.Token
	previous compiler.Token

	fc           *funcCompiler
	currentClass *classCompiler

	hadError  bool
	panicMode bool
	messages  []string
}

// Compile translates source to a synthetic zero-arity top-level function.
// On any parse error it returns a *CompileError listing every message; no
// partial function is returned.
func (vm *VM) Compile(source string) (*ObjFunction, error) {
	c := &Compiler{
		vm:    vm,
		lexer: compiler.NewLexer(source),
	}

	// The funcCompiler chain is a GC root: allocation during compilation
	// must see every function under construction.
	vm.compilingChain = c
	defer func() { vm.compilingChain = nil }()

	c.initFuncCompiler(kindScript)

	c.advance()
	for !c.match(compiler.TokenEOF) {
		c.declaration()
	}
	fn := c.endFuncCompiler()

	if c.hadError {
		return nil, &CompileError{Messages: c.messages}
	}
	return fn, nil
}

// ---------------------------------------------------------------------------
// Parser plumbing
// ---------------------------------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lexer.NextToken()
		if c.current.Type != compiler.TokenError {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) consume(tt compiler.TokenType, message string) {
	if c.current.Type == tt {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) check(tt compiler.TokenType) bool {
	return c.current.Type == tt
}

func (c *Compiler) match(tt compiler.TokenType) bool {
	if !c.check(tt) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.current, message)
}

func (c *Compiler) error(message string) {
	c.errorAt(c.previous, message)
}

func (c *Compiler) errorAt(tok compiler.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true

	var where string
	switch tok.Type {
	case compiler.TokenEOF:
		where = " at end"
	case compiler.TokenError:
		// The lexeme is the error message itself; no location suffix.
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	c.messages = append(c.messages, fmt.Sprintf("[line %d] Error%s: %s", tok.Line, where, message))
	c.hadError = true
}

// synchronize discards tokens until a statement boundary so one parse error
// does not cascade into dozens.
func (c *Compiler) synchronize() {
	c.panicMode = false

	for c.current.Type != compiler.TokenEOF {
		if c.previous.Type == compiler.TokenSemicolon {
			return
		}
		switch c.current.Type {
		case compiler.TokenClass, compiler.TokenFun, compiler.TokenVar,
			compiler.TokenFor, compiler.TokenIf, compiler.TokenWhile,
			compiler.TokenPrint, compiler.TokenReturn:
			return
		}
		c.advance()
	}
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) currentChunk() *Chunk {
	return &c.fc.function.Chunk
}

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.previous.Line)
}

func (c *Compiler) emitOp(op Opcode) {
	c.emitByte(byte(op))
}

func (c *Compiler) emitOps(op1, op2 Opcode) {
	c.emitOp(op1)
	c.emitOp(op2)
}

func (c *Compiler) emitWithOperand(op Opcode, operand byte) {
	c.emitOp(op)
	c.emitByte(operand)
}

func (c *Compiler) emitReturn() {
	if c.fc.kind == kindInitializer {
		c.emitWithOperand(OpGetLocal, 0)
	} else {
		c.emitOp(OpNil)
	}
	c.emitOp(OpReturn)
}

// makeConstant installs a value in the current chunk's pool, enforcing the
// single-byte operand budget.
func (c *Compiler) makeConstant(value Value) byte {
	idx := c.currentChunk().AddConstant(value)
	if idx >= MaxConstants {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(value Value) {
	c.emitWithOperand(OpConstant, c.makeConstant(value))
}

// emitJump writes a forward jump with a placeholder offset and returns the
// offset of the placeholder for patching.
func (c *Compiler) emitJump(op Opcode) int {
	c.emitOp(op)
	c.emitByte(0xFF)
	c.emitByte(0xFF)
	return len(c.currentChunk().Code) - 2
}

// patchJump backfills a forward jump to land on the next instruction.
func (c *Compiler) patchJump(offset int) {
	// -2 adjusts for the offset bytes themselves.
	jump := len(c.currentChunk().Code) - offset - 2
	if jump > 0xFFFF {
		c.error("Too much code to jump over.")
	}
	c.currentChunk().PatchUint16(offset, uint16(jump))
}

// emitLoop writes an unconditional backward jump to loopStart.
func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(OpLoop)
	offset := len(c.currentChunk().Code) - loopStart + 2
	if offset > 0xFFFF {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// ---------------------------------------------------------------------------
// Function compiler lifecycle
// ---------------------------------------------------------------------------

func (c *Compiler) initFuncCompiler(kind funcKind) {
	fc := &funcCompiler{
		enclosing: c.fc,
		kind:      kind,
		function:  c.vm.newFunction(),
	}
	// Link before any further allocation so the new function is a root.
	c.fc = fc
	if kind != kindScript {
		fc.function.Name = c.vm.copyString(c.previous.Lexeme)
	}

	// Slot 0 holds the receiver in methods; otherwise it is reserved and
	// unnameable (empty name).
	slot := &fc.locals[fc.localCount]
	fc.localCount++
	slot.depth = 0
	slot.isCaptured = false
	if kind == kindMethod || kind == kindInitializer {
		slot.name = compiler.Token{Type: compiler.TokenThis, Lexeme: "this"}
	} else {
		slot.name = compiler.Token{Type: compiler.TokenIdentifier, Lexeme: ""}
	}
}

func (c *Compiler) endFuncCompiler() *ObjFunction {
	c.emitReturn()
	fn := c.fc.function

	if c.vm.PrintDisasm && !c.hadError {
		name := "<script>"
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		fmt.Fprint(c.vm.Stderr, DisassembleChunk(&fn.Chunk, name))
	}

	c.fc = c.fc.enclosing
	return fn
}

func (c *Compiler) beginScope() {
	c.fc.scopeDepth++
}

// endScope pops locals declared in the scope, closing upvalues over any
// that were captured.
func (c *Compiler) endScope() {
	c.fc.scopeDepth--
	for c.fc.localCount > 0 &&
		c.fc.locals[c.fc.localCount-1].depth > c.fc.scopeDepth {
		if c.fc.locals[c.fc.localCount-1].isCaptured {
			c.emitOp(OpCloseUpvalue)
		} else {
			c.emitOp(OpPop)
		}
		c.fc.localCount--
	}
}

// ---------------------------------------------------------------------------
// Variable resolution
// ---------------------------------------------------------------------------

func identifiersEqual(a, b compiler.Token) bool {
	return a.Lexeme == b.Lexeme
}

// identifierConstant interns the identifier's name and installs it in the
// constant pool.
func (c *Compiler) identifierConstant(name compiler.Token) byte {
	return c.makeConstant(StringValue(c.vm.copyString(name.Lexeme)))
}

// resolveLocal searches the function's locals from most recent backward.
// Returns -1 when the name is not a local.
func (c *Compiler) resolveLocal(fc *funcCompiler, name compiler.Token) int {
	for i := fc.localCount - 1; i >= 0; i-- {
		l := &fc.locals[i]
		if identifiersEqual(name, l.name) {
			if l.depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// addUpvalue records a captured variable, deduplicating by (index, isLocal).
func (c *Compiler) addUpvalue(fc *funcCompiler, index uint8, isLocal bool) int {
	count := fc.function.UpvalueCount
	for i := 0; i < count; i++ {
		uv := &fc.upvalues[i]
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if count == maxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}
	fc.upvalues[count] = upvalueDesc{index: index, isLocal: isLocal}
	fc.function.UpvalueCount++
	return count
}

// resolveUpvalue recursively asks the enclosing function for the name. A
// local found there is marked captured; an upvalue found there is shared.
func (c *Compiler) resolveUpvalue(fc *funcCompiler, name compiler.Token) int {
	if fc.enclosing == nil {
		return -1
	}

	if localIdx := c.resolveLocal(fc.enclosing, name); localIdx != -1 {
		fc.enclosing.locals[localIdx].isCaptured = true
		return c.addUpvalue(fc, uint8(localIdx), true)
	}

	if upvalueIdx := c.resolveUpvalue(fc.enclosing, name); upvalueIdx != -1 {
		return c.addUpvalue(fc, uint8(upvalueIdx), false)
	}

	return -1
}

// addLocal reserves a slot for a declared-but-undefined local.
func (c *Compiler) addLocal(name compiler.Token) {
	if c.fc.localCount == maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	l := &c.fc.locals[c.fc.localCount]
	c.fc.localCount++
	l.name = name
	l.depth = -1
	l.isCaptured = false
}

// declareVariable registers a local in the current scope. Globals are late
// bound and skip declaration entirely.
func (c *Compiler) declareVariable() {
	if c.fc.scopeDepth == 0 {
		return
	}
	name := c.previous
	for i := c.fc.localCount - 1; i >= 0; i-- {
		l := &c.fc.locals[i]
		if l.depth != -1 && l.depth < c.fc.scopeDepth {
			break
		}
		if identifiersEqual(name, l.name) {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

// parseVariable consumes an identifier and returns its name constant (for
// globals) or 0 (for locals, which need no name at runtime).
func (c *Compiler) parseVariable(errorMessage string) byte {
	c.consume(compiler.TokenIdentifier, errorMessage)
	c.declareVariable()
	if c.fc.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous)
}

func (c *Compiler) markInitialized() {
	if c.fc.scopeDepth == 0 {
		return
	}
	c.fc.locals[c.fc.localCount-1].depth = c.fc.scopeDepth
}

func (c *Compiler) defineVariable(global byte) {
	if c.fc.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitWithOperand(OpDefineGlobal, global)
}

// namedVariable emits the get or set for an identifier reference, trying
// locals, then upvalues, then globals.
func (c *Compiler) namedVariable(name compiler.Token, canAssign bool) {
	var getOp, setOp Opcode
	arg := c.resolveLocal(c.fc, name)
	switch {
	case arg != -1:
		getOp, setOp = OpGetLocal, OpSetLocal
	default:
		if arg = c.resolveUpvalue(c.fc, name); arg != -1 {
			getOp, setOp = OpGetUpvalue, OpSetUpvalue
		} else {
			arg = int(c.identifierConstant(name))
			getOp, setOp = OpGetGlobal, OpSetGlobal
		}
	}

	if canAssign && c.match(compiler.TokenEqual) {
		c.expression()
		c.emitWithOperand(setOp, byte(arg))
	} else {
		c.emitWithOperand(getOp, byte(arg))
	}
}

func syntheticToken(lexeme string) compiler.Token {
	return compiler.Token{Type: compiler.TokenIdentifier, Lexeme: lexeme}
}

// ---------------------------------------------------------------------------
// Declarations and statements
// ---------------------------------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(compiler.TokenClass):
		c.classDeclaration()
	case c.match(compiler.TokenFun):
		c.funDeclaration()
	case c.match(compiler.TokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(compiler.TokenIdentifier, "Expect class name.")
	className := c.previous
	nameConstant := c.identifierConstant(c.previous)
	c.declareVariable()

	c.emitWithOperand(OpClass, nameConstant)
	c.defineVariable(nameConstant)

	cc := &classCompiler{enclosing: c.currentClass}
	c.currentClass = cc

	if c.match(compiler.TokenLess) {
		c.consume(compiler.TokenIdentifier, "Expect superclass name.")
		c.variable(false)
		if identifiersEqual(className, c.previous) {
			c.error("A class can't inherit from itself.")
		}

		// Synthetic scope binding 'super' so methods capture it as an
		// ordinary upvalue.
		c.beginScope()
		c.addLocal(syntheticToken("super"))
		c.defineVariable(0)

		c.namedVariable(className, false)
		c.emitOp(OpInherit)
		cc.hasSuperclass = true
	}

	c.namedVariable(className, false)
	c.consume(compiler.TokenLBrace, "Expect '{' before class body.")
	for !c.check(compiler.TokenRBrace) && !c.check(compiler.TokenEOF) {
		c.method()
	}
	c.consume(compiler.TokenRBrace, "Expect '}' after class body.")
	c.emitOp(OpPop)

	if cc.hasSuperclass {
		c.endScope()
	}
	c.currentClass = cc.enclosing
}

func (c *Compiler) method() {
	c.consume(compiler.TokenIdentifier, "Expect method name.")
	constant := c.identifierConstant(c.previous)

	kind := kindMethod
	if c.previous.Lexeme == "init" {
		kind = kindInitializer
	}
	c.function(kind)
	c.emitWithOperand(OpMethod, constant)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	// A function may refer to itself; mark it initialized immediately so
	// recursive references resolve.
	c.markInitialized()
	c.function(kindFunction)
	c.defineVariable(global)
}

// function compiles a parameter list and body in a fresh funcCompiler, then
// emits the closure wrapping in the enclosing one.
func (c *Compiler) function(kind funcKind) {
	c.initFuncCompiler(kind)
	c.beginScope()

	c.consume(compiler.TokenLParen, "Expect '(' after function name.")
	if !c.check(compiler.TokenRParen) {
		for {
			c.fc.function.Arity++
			if c.fc.function.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(compiler.TokenComma) {
				break
			}
		}
	}
	c.consume(compiler.TokenRParen, "Expect ')' after parameters.")
	c.consume(compiler.TokenLBrace, "Expect '{' before function body.")
	c.block()

	fc := c.fc
	fn := c.endFuncCompiler()
	c.emitWithOperand(OpClosure, c.makeConstant(FunctionValue(fn)))

	// One (isLocal, index) pair per upvalue trails the instruction.
	for i := 0; i < fn.UpvalueCount; i++ {
		if fc.upvalues[i].isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(fc.upvalues[i].index)
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.match(compiler.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(OpNil)
	}
	c.consume(compiler.TokenSemicolon, "Expect ';' after variable declaration.")

	c.defineVariable(global)
}

func (c *Compiler) statement() {
	switch {
	case c.match(compiler.TokenPrint):
		c.printStatement()
	case c.match(compiler.TokenFor):
		c.forStatement()
	case c.match(compiler.TokenIf):
		c.ifStatement()
	case c.match(compiler.TokenReturn):
		c.returnStatement()
	case c.match(compiler.TokenWhile):
		c.whileStatement()
	case c.match(compiler.TokenLBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(compiler.TokenRBrace) && !c.check(compiler.TokenEOF) {
		c.declaration()
	}
	c.consume(compiler.TokenRBrace, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(compiler.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(compiler.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(OpPop)
}

func (c *Compiler) returnStatement() {
	if c.fc.kind == kindScript {
		c.error("Can't return from top-level code.")
	}

	if c.match(compiler.TokenSemicolon) {
		c.emitReturn()
		return
	}
	if c.fc.kind == kindInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(compiler.TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(OpReturn)
}

func (c *Compiler) ifStatement() {
	c.consume(compiler.TokenLParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(compiler.TokenRParen, "Expect ')' after condition.")

	thenJump := c.emitJump(OpJumpIfFalse)
	c.emitOp(OpPop)
	c.statement()

	elseJump := c.emitJump(OpJump)
	c.patchJump(thenJump)
	c.emitOp(OpPop)

	if c.match(compiler.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.currentChunk().Code)
	c.consume(compiler.TokenLParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(compiler.TokenRParen, "Expect ')' after condition.")

	exitJump := c.emitJump(OpJumpIfFalse)
	c.emitOp(OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(OpPop)
}

// forStatement desugars to a while loop: the initializer runs in its own
// scope, the increment clause is hoisted behind a jump so the body runs
// first.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(compiler.TokenLParen, "Expect '(' after 'for'.")

	switch {
	case c.match(compiler.TokenSemicolon):
		// No initializer.
	case c.match(compiler.TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentChunk().Code)
	exitJump := -1
	if !c.match(compiler.TokenSemicolon) {
		c.expression()
		c.consume(compiler.TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(OpJumpIfFalse)
		c.emitOp(OpPop)
	}

	if !c.match(compiler.TokenRParen) {
		bodyJump := c.emitJump(OpJump)
		incrementStart := len(c.currentChunk().Code)
		c.expression()
		c.emitOp(OpPop)
		c.consume(compiler.TokenRParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(OpPop)
	}
	c.endScope()
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

// parsePrecedence is the Pratt driver: consume one token, run its prefix
// rule, then fold infix rules while the upcoming operator binds at least as
// tightly as minPrec.
func (c *Compiler) parsePrecedence(minPrec precedence) {
	c.advance()
	rule := getRule(c.previous.Type)
	if rule.prefix == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := minPrec <= precAssignment
	rule.prefix(c, canAssign)

	for minPrec <= getRule(c.current.Type).prec {
		c.advance()
		getRule(c.previous.Type).infix(c, canAssign)
	}

	if canAssign && c.match(compiler.TokenEqual) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) grouping(bool) {
	c.expression()
	c.consume(compiler.TokenRParen, "Expect ')' after expression.")
}

func (c *Compiler) number(bool) {
	// The token carries no literal value; the lexeme is reparsed here.
	f, err := strconv.ParseFloat(c.previous.Lexeme, 64)
	if err != nil {
		c.error("Invalid number literal.")
		return
	}
	c.emitConstant(FromFloat64(f))
}

func (c *Compiler) stringLit(bool) {
	// Strip the surrounding quotes; Lox strings have no escapes.
	lexeme := c.previous.Lexeme
	chars := lexeme[1 : len(lexeme)-1]
	c.emitConstant(StringValue(c.vm.copyString(chars)))
}

func (c *Compiler) literal(bool) {
	switch c.previous.Type {
	case compiler.TokenFalse:
		c.emitOp(OpFalse)
	case compiler.TokenNil:
		c.emitOp(OpNil)
	case compiler.TokenTrue:
		c.emitOp(OpTrue)
	}
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

func (c *Compiler) unary(bool) {
	operator := c.previous.Type
	c.parsePrecedence(precUnary)

	switch operator {
	case compiler.TokenBang:
		c.emitOp(OpNot)
	case compiler.TokenMinus:
		c.emitOp(OpNegate)
	}
}

func (c *Compiler) binary(bool) {
	operator := c.previous.Type
	// Left associativity: the right operand binds one level tighter.
	c.parsePrecedence(getRule(operator).prec + 1)

	switch operator {
	case compiler.TokenBangEqual:
		c.emitOps(OpEqual, OpNot)
	case compiler.TokenEqualEqual:
		c.emitOp(OpEqual)
	case compiler.TokenGreater:
		c.emitOp(OpGreater)
	case compiler.TokenGreaterEqual:
		c.emitOps(OpLess, OpNot)
	case compiler.TokenLess:
		c.emitOp(OpLess)
	case compiler.TokenLessEqual:
		c.emitOps(OpGreater, OpNot)
	case compiler.TokenPlus:
		c.emitOp(OpAdd)
	case compiler.TokenMinus:
		c.emitOp(OpSubtract)
	case compiler.TokenStar:
		c.emitOp(OpMultiply)
	case compiler.TokenSlash:
		c.emitOp(OpDivide)
	}
}

// and_ short-circuits: if the left operand is falsey it stays on the stack
// as the result and the right operand is skipped.
func (c *Compiler) and_(bool) {
	endJump := c.emitJump(OpJumpIfFalse)
	c.emitOp(OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or_(bool) {
	elseJump := c.emitJump(OpJumpIfFalse)
	endJump := c.emitJump(OpJump)

	c.patchJump(elseJump)
	c.emitOp(OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) argumentList() byte {
	var argc byte
	if !c.check(compiler.TokenRParen) {
		for {
			c.expression()
			if argc == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			argc++
			if !c.match(compiler.TokenComma) {
				break
			}
		}
	}
	c.consume(compiler.TokenRParen, "Expect ')' after arguments.")
	return argc
}

func (c *Compiler) call(bool) {
	argc := c.argumentList()
	c.emitWithOperand(OpCall, argc)
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(compiler.TokenIdentifier, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous)

	switch {
	case canAssign && c.match(compiler.TokenEqual):
		c.expression()
		c.emitWithOperand(OpSetProperty, name)
	case c.match(compiler.TokenLParen):
		argc := c.argumentList()
		c.emitWithOperand(OpInvoke, name)
		c.emitByte(argc)
	default:
		c.emitWithOperand(OpGetProperty, name)
	}
}

func (c *Compiler) this_(bool) {
	if c.currentClass == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.variable(false)
}

func (c *Compiler) super_(bool) {
	if c.currentClass == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.currentClass.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(compiler.TokenDot, "Expect '.' after 'super'.")
	c.consume(compiler.TokenIdentifier, "Expect superclass method name.")
	name := c.identifierConstant(c.previous)

	c.namedVariable(syntheticToken("this"), false)
	if c.match(compiler.TokenLParen) {
		argc := c.argumentList()
		c.namedVariable(syntheticToken("super"), false)
		c.emitWithOperand(OpSuperInvoke, name)
		c.emitByte(argc)
	} else {
		c.namedVariable(syntheticToken("super"), false)
		c.emitWithOperand(OpGetSuper, name)
	}
}

// ---------------------------------------------------------------------------
// Parse rule table
// ---------------------------------------------------------------------------

var rules map[compiler.TokenType]parseRule

func init() {
	rules = map[compiler.TokenType]parseRule{
		compiler.TokenLParen:       {(*Compiler).grouping, (*Compiler).call, precCall},
		compiler.TokenDot:          {nil, (*Compiler).dot, precCall},
		compiler.TokenMinus:        {(*Compiler).unary, (*Compiler).binary, precTerm},
		compiler.TokenPlus:         {nil, (*Compiler).binary, precTerm},
		compiler.TokenSlash:        {nil, (*Compiler).binary, precFactor},
		compiler.TokenStar:         {nil, (*Compiler).binary, precFactor},
		compiler.TokenBang:         {(*Compiler).unary, nil, precNone},
		compiler.TokenBangEqual:    {nil, (*Compiler).binary, precEquality},
		compiler.TokenEqualEqual:   {nil, (*Compiler).binary, precEquality},
		compiler.TokenGreater:      {nil, (*Compiler).binary, precComparison},
		compiler.TokenGreaterEqual: {nil, (*Compiler).binary, precComparison},
		compiler.TokenLess:         {nil, (*Compiler).binary, precComparison},
		compiler.TokenLessEqual:    {nil, (*Compiler).binary, precComparison},
		compiler.TokenIdentifier:   {(*Compiler).variable, nil, precNone},
		compiler.TokenString:       {(*Compiler).stringLit, nil, precNone},
		compiler.TokenNumber:       {(*Compiler).number, nil, precNone},
		compiler.TokenAnd:          {nil, (*Compiler).and_, precAnd},
		compiler.TokenOr:           {nil, (*Compiler).or_, precOr},
		compiler.TokenFalse:        {(*Compiler).literal, nil, precNone},
		compiler.TokenNil:          {(*Compiler).literal, nil, precNone},
		compiler.TokenTrue:         {(*Compiler).literal, nil, precNone},
		compiler.TokenSuper:        {(*Compiler).super_, nil, precNone},
		compiler.TokenThis:         {(*Compiler).this_, nil, precNone},
	}
}

func getRule(tt compiler.TokenType) parseRule {
	return rules[tt]
}
