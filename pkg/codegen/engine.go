package codegen

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"hackvm/pkg/vm"
)

// Fixed Hack memory map.
//
//	0-4       SP, LCL, ARG, THIS, THAT
//	5-12      temp segment
//	13-15     scratch (R13 pop address, R14 frame base, R15 return address)
//	16-255    static variables (allocated by the assembler)
//	256-2047  stack
const (
	StackBase   = 256
	tempBase    = 5
	pointerBase = 3

	// frameWords is the size of the saved caller frame:
	// return address, LCL, ARG, THIS, THAT.
	frameWords = 5

	// branchLen is the number of instructions writeBranch emits.
	branchLen = 6
)

const (
	// DefaultEntry is the function the bootstrap calls.
	DefaultEntry = "Sys.init"
	// DefaultUnit scopes labels and statics before the first SetUnit.
	DefaultUnit = "Sys"
)

var segmentBase = map[vm.Segment]string{
	vm.Local:    "LCL",
	vm.Argument: "ARG",
	vm.This:     "THIS",
	vm.That:     "THAT",
}

// Options controls engine construction.
type Options struct {
	// Bootstrap emits SP=256 and a call to Entry ahead of everything else.
	Bootstrap bool
	// Entry overrides DefaultEntry.
	Entry string
	// OmitComments drops the "// <command>" line Write puts before each block.
	OmitComments bool
}

// Engine translates VM commands into Hack assembly. One Engine owns one
// output stream; translation units share it by calling SetUnit in turn.
type Engine struct {
	out  *bufio.Writer
	opts Options

	pc     int      // ROM address of the next emitted instruction
	scopes []string // open functions, innermost last
	closed string   // last function closed by a return, until the next function or unit
	calls  int      // return labels issued so far
	unit   string
}

// NewEngine creates an engine writing to w. Output is buffered until Flush.
func NewEngine(w io.Writer, opts Options) *Engine {
	if opts.Entry == "" {
		opts.Entry = DefaultEntry
	}
	e := &Engine{
		out:  bufio.NewWriter(w),
		opts: opts,
		unit: DefaultUnit,
	}
	if opts.Bootstrap {
		e.writeBootstrap()
	}
	return e
}

// SetUnit names the translation unit whose commands follow. The name
// qualifies static symbols; the scope stack and ROM counter carry over.
func (e *Engine) SetUnit(name string) {
	e.unit = name
	e.closed = ""
}

// Unit returns the current translation unit name.
func (e *Engine) Unit() string { return e.unit }

// Instructions returns how many instructions have been emitted, which is
// also the ROM address of the next one.
func (e *Engine) Instructions() int { return e.pc }

// Scope returns the name labels are currently qualified with: the function
// most recently closed by a return, until the next function or unit starts
// (code after an early return still belongs to it), else the innermost open
// function, else the unit.
func (e *Engine) Scope() string {
	if e.closed != "" {
		return e.closed
	}
	if n := len(e.scopes); n > 0 {
		return e.scopes[n-1]
	}
	return e.unit
}

// Flush writes any buffered output. Write errors are sticky and reported here.
func (e *Engine) Flush() error {
	return e.out.Flush()
}

// Write emits the source comment for cmd followed by its translation.
func (e *Engine) Write(cmd vm.Command) {
	if !e.opts.OmitComments {
		e.comment(cmd.String())
	}

	switch c := cmd.(type) {
	case *vm.Arithmetic:
		e.WriteArithmetic(c.Op)
	case *vm.Push:
		e.WritePush(c.Segment, c.Index)
	case *vm.Pop:
		e.WritePop(c.Segment, c.Index)
	case *vm.Label:
		e.WriteLabel(c.Name)
	case *vm.Goto:
		e.WriteGoto(c.Name)
	case *vm.IfGoto:
		e.WriteIf(c.Name)
	case *vm.Call:
		e.WriteCall(c.Function, c.Args)
	case *vm.Function:
		e.WriteFunction(c.Name, c.Locals)
	case *vm.Return:
		e.WriteReturn()
	default:
		panic(fmt.Sprintf("codegen: unsupported command %T", cmd))
	}
}

func (e *Engine) writeBootstrap() {
	if !e.opts.OmitComments {
		e.comment("bootstrap")
	}
	e.inst("@%d", StackBase)
	e.inst("D=A")
	e.inst("@SP")
	e.inst("M=D")
	e.Write(&vm.Call{Function: e.opts.Entry})
}

// WriteArithmetic emits a stack arithmetic, logical or comparison command.
func (e *Engine) WriteArithmetic(op vm.Op) {
	switch op {
	case vm.Neg, vm.Not:
		e.inst("@SP")
		e.inst("A=M-1")
		if op == vm.Neg {
			e.inst("M=-M")
		} else {
			e.inst("M=!M")
		}

	case vm.Add, vm.Sub, vm.And, vm.Or:
		// y in D, then x is rewritten in place
		e.popD()
		e.inst("@SP")
		e.inst("A=M-1")
		switch op {
		case vm.Add:
			e.inst("M=D+M")
		case vm.Sub:
			e.inst("M=M-D")
		case vm.And:
			e.inst("M=D&M")
		default:
			e.inst("M=D|M")
		}

	case vm.Eq, vm.Gt, vm.Lt:
		e.popD()
		e.inst("@SP")
		e.inst("A=M-1")
		e.inst("D=M-D")
		e.writeBranch(comparisonJump[op])
		e.inst("@SP")
		e.inst("A=M-1")
		e.inst("M=D")

	default:
		panic(fmt.Sprintf("codegen: unknown arithmetic op %v", op))
	}
}

var comparisonJump = map[vm.Op]string{
	vm.Eq: "JEQ",
	vm.Gt: "JGT",
	vm.Lt: "JLT",
}

// writeBranch turns D into -1 when D satisfies jump and 0 otherwise.
// Targets are absolute ROM addresses computed from the instruction counter;
// the block is always branchLen instructions long:
//
//	b+0  @b+5
//	b+1  D;<jump>
//	b+2  D=0
//	b+3  @b+6
//	b+4  0;JMP
//	b+5  D=-1
func (e *Engine) writeBranch(jump string) {
	base := e.pc
	e.inst("@%d", base+branchLen-1)
	e.inst("D;%s", jump)
	e.inst("D=0")
	e.inst("@%d", base+branchLen)
	e.inst("0;JMP")
	e.inst("D=-1")
	if e.pc != base+branchLen {
		panic("codegen: branch block length drifted")
	}
}

// WritePush pushes segment[index] onto the stack.
func (e *Engine) WritePush(seg vm.Segment, index int) {
	switch {
	case seg.IsScoped():
		e.inst("@%s", segmentBase[seg])
		e.inst("D=M")
		e.inst("@%d", index)
		e.inst("A=D+A")
		e.inst("D=M")
	case seg == vm.Constant:
		e.inst("@%d", index)
		e.inst("D=A")
	default:
		e.inst("@%s", e.fixedAddress(seg, index))
		e.inst("D=M")
	}
	e.pushD()
}

// WritePop pops the stack into segment[index]. The destination address is
// computed into R13 before SP moves.
func (e *Engine) WritePop(seg vm.Segment, index int) {
	switch {
	case seg == vm.Constant:
		panic("codegen: pop constant has no destination")
	case seg.IsScoped():
		e.inst("@%s", segmentBase[seg])
		e.inst("D=M")
		e.inst("@%d", index)
		e.inst("D=D+A")
	default:
		e.inst("@%s", e.fixedAddress(seg, index))
		e.inst("D=A")
	}
	e.inst("@R13")
	e.inst("M=D")

	e.popD()

	e.inst("@R13")
	e.inst("A=M")
	e.inst("M=D")
}

// fixedAddress resolves temp, pointer and static to a literal or symbol.
func (e *Engine) fixedAddress(seg vm.Segment, index int) string {
	switch seg {
	case vm.Temp:
		if index < 0 || index > 7 {
			panic(fmt.Sprintf("codegen: temp index %d out of range", index))
		}
		return fmt.Sprint(tempBase + index)
	case vm.Pointer:
		if index < 0 || index > 1 {
			panic(fmt.Sprintf("codegen: pointer index %d out of range", index))
		}
		return fmt.Sprint(pointerBase + index)
	case vm.Static:
		return StaticSymbol(e.unit, index)
	}
	panic(fmt.Sprintf("codegen: unknown segment %v", seg))
}

// StaticSymbol is the assembler symbol backing "static index" in unit.
func StaticSymbol(unit string, index int) string {
	return fmt.Sprintf("%s.%d", unit, index)
}

// ScopedLabel qualifies a VM label with its owning function. '$' never
// occurs in a VM identifier, so distinct pairs cannot collide.
func ScopedLabel(scope, name string) string {
	return scope + "$" + name
}

// ReturnLabel is the label WriteCall places after the n-th call. The second
// '$' keeps it apart from every ScopedLabel of a user label.
func ReturnLabel(scope string, n int) string {
	return ScopedLabel(scope, "ret") + "$" + strconv.Itoa(n)
}

// WriteLabel defines name in the current scope.
func (e *Engine) WriteLabel(name string) {
	e.label(ScopedLabel(e.Scope(), name))
}

// WriteGoto jumps to name in the current scope.
func (e *Engine) WriteGoto(name string) {
	e.inst("@%s", ScopedLabel(e.Scope(), name))
	e.inst("0;JMP")
}

// WriteIf pops the stack and jumps to name when the value is non-zero.
func (e *Engine) WriteIf(name string) {
	e.popD()
	e.inst("@%s", ScopedLabel(e.Scope(), name))
	e.inst("D;JNE")
}

// WriteCall saves the caller frame, repositions ARG and LCL for the callee
// and jumps to it. Stack after the saves:
//
//	ARG -> arg 0 .. arg n-1, return address, LCL, ARG, THIS, THAT <- LCL = SP
func (e *Engine) WriteCall(function string, args int) {
	ret := ReturnLabel(e.Scope(), e.calls)
	e.calls++

	e.inst("@%s", ret)
	e.inst("D=A")
	e.pushD()
	for _, reg := range []string{"LCL", "ARG", "THIS", "THAT"} {
		e.inst("@%s", reg)
		e.inst("D=M")
		e.pushD()
	}

	// ARG = SP - n - 5, in two steps so n alone must fit the A literal
	e.inst("@SP")
	e.inst("D=M")
	e.inst("@%d", args)
	e.inst("D=D-A")
	e.inst("@%d", frameWords)
	e.inst("D=D-A")
	e.inst("@ARG")
	e.inst("M=D")

	// LCL = SP
	e.inst("@SP")
	e.inst("D=M")
	e.inst("@LCL")
	e.inst("M=D")

	e.inst("@%s", function)
	e.inst("0;JMP")
	e.label(ret)
}

// WriteReturn unwinds the frame WriteCall built and closes the current
// function scope.
func (e *Engine) WriteReturn() {
	// R14 = FRAME = LCL
	e.inst("@LCL")
	e.inst("D=M")
	e.inst("@R14")
	e.inst("M=D")

	// R15 = RET = *(FRAME-5), read before *ARG overwrites it when n == 0
	e.inst("@%d", frameWords)
	e.inst("A=D-A")
	e.inst("D=M")
	e.inst("@R15")
	e.inst("M=D")

	// *ARG = pop()
	e.popD()
	e.inst("@ARG")
	e.inst("A=M")
	e.inst("M=D")

	// SP = ARG + 1
	e.inst("@ARG")
	e.inst("D=M+1")
	e.inst("@SP")
	e.inst("M=D")

	for i, reg := range []string{"THAT", "THIS", "ARG", "LCL"} {
		e.inst("@R14")
		e.inst("D=M")
		e.inst("@%d", i+1)
		e.inst("A=D-A")
		e.inst("D=M")
		e.inst("@%s", reg)
		e.inst("M=D")
	}

	e.inst("@R15")
	e.inst("A=M")
	e.inst("0;JMP")

	// later returns in the same function close nothing more
	if n := len(e.scopes); n > 0 && e.closed == "" {
		e.closed = e.scopes[n-1]
		e.scopes = e.scopes[:n-1]
	}
}

// WriteFunction opens a scope for name, emits its entry label and zeroes
// locals LCL+0 .. LCL+locals-1. SP is then moved past them.
func (e *Engine) WriteFunction(name string, locals int) {
	e.scopes = append(e.scopes, name)
	e.closed = ""
	e.label(name)

	for k := 0; k < locals; k++ {
		e.inst("@LCL")
		e.inst("D=M")
		e.inst("@%d", k)
		e.inst("A=D+A")
		e.inst("M=0")
	}
	if locals > 0 {
		e.inst("@LCL")
		e.inst("D=M")
		e.inst("@%d", locals)
		e.inst("D=D+A")
		e.inst("@SP")
		e.inst("M=D")
	}
}

// pushD pushes D and increments SP.
func (e *Engine) pushD() {
	e.inst("@SP")
	e.inst("A=M")
	e.inst("M=D")
	e.inst("@SP")
	e.inst("M=M+1")
}

// popD decrements SP, loads the value into D and clears the vacated cell.
func (e *Engine) popD() {
	e.inst("@SP")
	e.inst("AM=M-1")
	e.inst("D=M")
	e.inst("M=0")
}

func (e *Engine) inst(format string, args ...any) {
	fmt.Fprintf(e.out, "\t"+format+"\n", args...)
	e.pc++
}

func (e *Engine) label(name string) {
	fmt.Fprintf(e.out, "(%s)\n", name)
}

func (e *Engine) comment(text string) {
	fmt.Fprintf(e.out, "// %s\n", text)
}
