package vm

import "fmt"

// Op identifies an arithmetic or logical command.
type Op int

const (
	Add Op = iota // x + y
	Sub           // x - y
	Neg           // -y
	Eq            // x == y
	Gt            // x > y
	Lt            // x < y
	And           // x & y
	Or            // x | y
	Not           // !y
)

var opNames = [...]string{
	Add: "add",
	Sub: "sub",
	Neg: "neg",
	Eq:  "eq",
	Gt:  "gt",
	Lt:  "lt",
	And: "and",
	Or:  "or",
	Not: "not",
}

func (op Op) String() string {
	if int(op) >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// IsUnary reports whether op consumes a single operand.
func (op Op) IsUnary() bool { return op == Neg || op == Not }

// IsComparison reports whether op produces a boolean (-1 / 0).
func (op Op) IsComparison() bool { return op == Eq || op == Gt || op == Lt }

// ParseOp maps a keyword such as "add" to its Op.
func ParseOp(s string) (Op, bool) {
	for i, name := range opNames {
		if name == s {
			return Op(i), true
		}
	}
	return 0, false
}

// Segment is one of the eight virtual memory segments.
type Segment int

const (
	Argument Segment = iota
	Local
	This
	That
	Pointer
	Static
	Temp
	Constant
)

var segmentNames = [...]string{
	Argument: "argument",
	Local:    "local",
	This:     "this",
	That:     "that",
	Pointer:  "pointer",
	Static:   "static",
	Temp:     "temp",
	Constant: "constant",
}

func (s Segment) String() string {
	if int(s) >= 0 && int(s) < len(segmentNames) {
		return segmentNames[s]
	}
	return fmt.Sprintf("Segment(%d)", int(s))
}

// IsScoped reports whether the segment's base address lives in a pointer
// cell (LCL, ARG, THIS, THAT) and accesses are base + index.
func (s Segment) IsScoped() bool {
	switch s {
	case Argument, Local, This, That:
		return true
	}
	return false
}

// ParseSegment maps a keyword such as "local" to its Segment.
func ParseSegment(s string) (Segment, bool) {
	for i, name := range segmentNames {
		if name == s {
			return Segment(i), true
		}
	}
	return 0, false
}

// Command is implemented by every parsed VM instruction.
// String renders the canonical source form, e.g. "push constant 7".
type Command interface {
	command()
	String() string
}

// Arithmetic is a stack arithmetic, comparison or logical command.
//
//	add
//	^^^  Arithmetic{Op: Add}
type Arithmetic struct {
	Op Op
}

func (*Arithmetic) command()         {}
func (a *Arithmetic) String() string { return a.Op.String() }

// Push copies Segment[Index] onto the stack.
//
//	push local 2
//	     ^^^^^ ^  Push{Segment: Local, Index: 2}
type Push struct {
	Segment Segment
	Index   int
}

func (*Push) command() {}
func (p *Push) String() string {
	return fmt.Sprintf("push %s %d", p.Segment, p.Index)
}

// Pop moves the top of the stack into Segment[Index].
type Pop struct {
	Segment Segment
	Index   int
}

func (*Pop) command() {}
func (p *Pop) String() string {
	return fmt.Sprintf("pop %s %d", p.Segment, p.Index)
}

// Label marks a jump target inside the enclosing function.
type Label struct {
	Name string
}

func (*Label) command()         {}
func (l *Label) String() string { return "label " + l.Name }

// Goto jumps unconditionally to a label of the enclosing function.
type Goto struct {
	Name string
}

func (*Goto) command()         {}
func (g *Goto) String() string { return "goto " + g.Name }

// IfGoto pops the stack and jumps when the value is non-zero.
type IfGoto struct {
	Name string
}

func (*IfGoto) command()         {}
func (g *IfGoto) String() string { return "if-goto " + g.Name }

// Call invokes Function after Args arguments have been pushed.
//
//	call Math.multiply 2
//	     ^^^^^^^^^^^^^ ^  Call{Function: "Math.multiply", Args: 2}
type Call struct {
	Function string
	Args     int
}

func (*Call) command() {}
func (c *Call) String() string {
	return fmt.Sprintf("call %s %d", c.Function, c.Args)
}

// Function opens a function body with Locals zero-initialised locals.
type Function struct {
	Name   string
	Locals int
}

func (*Function) command() {}
func (f *Function) String() string {
	return fmt.Sprintf("function %s %d", f.Name, f.Locals)
}

// Return hands the top of the stack back to the caller.
type Return struct{}

func (*Return) command()       {}
func (*Return) String() string { return "return" }
