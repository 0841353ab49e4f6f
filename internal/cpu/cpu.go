// Package cpu emulates the Hack CPU closely enough to run translator
// output in tests: A/D registers, a word-addressed RAM and a ROM of
// 16-bit instructions.
package cpu

import (
	"errors"
	"fmt"
)

// Registers mapped into RAM.
const (
	SP   uint16 = 0
	LCL  uint16 = 1
	ARG  uint16 = 2
	THIS uint16 = 3
	THAT uint16 = 4

	RAMSize = 0x8000
)

// Destination bits of a C-instruction.
const (
	DestM uint16 = 1 << iota
	DestD
	DestA
)

// Jump bits of a C-instruction.
const (
	JumpGT uint16 = 1 << iota
	JumpEQ
	JumpLT

	JumpMP = JumpGT | JumpEQ | JumpLT
)

// DefaultStepLimit bounds Run so a runaway program fails the test instead
// of hanging it.
const DefaultStepLimit = 1_000_000

var ErrStepLimit = errors.New("step limit reached")

type CPU struct {
	A  uint16
	D  uint16
	PC uint16

	RAM [RAMSize]uint16
	ROM []uint16

	Halted    bool
	Steps     int
	StepLimit int
}

// NewCPU loads program into ROM.
func NewCPU(program []uint16) *CPU {
	return &CPU{
		ROM:       program,
		StepLimit: DefaultStepLimit,
	}
}

// EncodeC builds a C-instruction from its 7-bit comp (a + c1..c6),
// dest and jump fields.
func EncodeC(comp, dest, jump uint16) uint16 {
	return 0xE000 | (comp&0x7F)<<6 | (dest&0x07)<<3 | jump&0x07
}

// Step executes one instruction. Running off the end of ROM, or an
// unconditional jump to the A-instruction just before it ("(L) @L 0;JMP"),
// halts the CPU.
func (c *CPU) Step() {
	if c.Halted {
		return
	}
	if int(c.PC) >= len(c.ROM) {
		c.Halted = true
		return
	}

	instr := c.ROM[c.PC]
	c.Steps++

	if instr&0x8000 == 0 {
		c.A = instr
		c.PC++
		return
	}

	addr := c.A
	y := c.A
	if instr&0x1000 != 0 {
		y = c.Read(addr)
	}
	out := alu(c.D, y, (instr>>6)&0x3F)

	dest := (instr >> 3) & 0x07
	if dest&DestM != 0 {
		c.Write(addr, out)
	}
	if dest&DestA != 0 {
		c.A = out
	}
	if dest&DestD != 0 {
		c.D = out
	}

	jump := instr & 0x07
	if !jumps(out, jump) {
		c.PC++
		return
	}
	if jump == JumpMP && addr+1 == c.PC {
		c.Halted = true
	}
	c.PC = addr
}

// Run steps until the CPU halts or StepLimit instructions have executed.
func (c *CPU) Run() error {
	limit := c.StepLimit
	if limit <= 0 {
		limit = DefaultStepLimit
	}
	for !c.Halted {
		if c.Steps >= limit {
			return fmt.Errorf("%w: PC=%d after %d steps", ErrStepLimit, c.PC, c.Steps)
		}
		c.Step()
	}
	return nil
}

func (c *CPU) Read(addr uint16) uint16 {
	return c.RAM[addr&(RAMSize-1)]
}

func (c *CPU) Write(addr, val uint16) {
	c.RAM[addr&(RAMSize-1)] = val
}

// Word returns RAM[addr] as a signed value.
func (c *CPU) Word(addr uint16) int16 {
	return int16(c.Read(addr))
}

// Stack returns the live stack from base up to (not including) SP.
func (c *CPU) Stack(base uint16) []int16 {
	sp := c.Read(SP)
	if sp < base {
		return nil
	}
	out := make([]int16, 0, sp-base)
	for a := base; a < sp; a++ {
		out = append(out, c.Word(a))
	}
	return out
}

// alu implements the Hack ALU; ctl holds zx nx zy ny f no, zx first.
func alu(x, y, ctl uint16) uint16 {
	if ctl&0x20 != 0 {
		x = 0
	}
	if ctl&0x10 != 0 {
		x = ^x
	}
	if ctl&0x08 != 0 {
		y = 0
	}
	if ctl&0x04 != 0 {
		y = ^y
	}
	var out uint16
	if ctl&0x02 != 0 {
		out = x + y
	} else {
		out = x & y
	}
	if ctl&0x01 != 0 {
		out = ^out
	}
	return out
}

func jumps(out, jump uint16) bool {
	v := int16(out)
	return (jump&JumpLT != 0 && v < 0) ||
		(jump&JumpEQ != 0 && v == 0) ||
		(jump&JumpGT != 0 && v > 0)
}
