// Package asm is a two-pass assembler for Hack assembly. It exists so tests
// can run translator output on the cpu package.
package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"hackvm/internal/cpu"
)

// Comp field codes (a bit followed by c1..c6).
var compCodes = map[string]uint16{
	"0":   0b0101010,
	"1":   0b0111111,
	"-1":  0b0111010,
	"D":   0b0001100,
	"A":   0b0110000,
	"!D":  0b0001101,
	"!A":  0b0110001,
	"-D":  0b0001111,
	"-A":  0b0110011,
	"D+1": 0b0011111,
	"A+1": 0b0110111,
	"D-1": 0b0001110,
	"A-1": 0b0110010,
	"D+A": 0b0000010,
	"D-A": 0b0010011,
	"A-D": 0b0000111,
	"D&A": 0b0000000,
	"D|A": 0b0010101,
	"M":   0b1110000,
	"!M":  0b1110001,
	"-M":  0b1110011,
	"M+1": 0b1110111,
	"M-1": 0b1110010,
	"D+M": 0b1000010,
	"D-M": 0b1010011,
	"M-D": 0b1000111,
	"D&M": 0b1000000,
	"D|M": 0b1010101,

	// commuted spellings
	"A+D": 0b0000010,
	"A&D": 0b0000000,
	"A|D": 0b0010101,
	"M+D": 0b1000010,
	"M&D": 0b1000000,
	"M|D": 0b1010101,
}

var jumpCodes = map[string]uint16{
	"":    0,
	"JGT": cpu.JumpGT,
	"JEQ": cpu.JumpEQ,
	"JGE": cpu.JumpGT | cpu.JumpEQ,
	"JLT": cpu.JumpLT,
	"JNE": cpu.JumpLT | cpu.JumpGT,
	"JLE": cpu.JumpLT | cpu.JumpEQ,
	"JMP": cpu.JumpMP,
}

var predefined = map[string]uint16{
	"SP":     0,
	"LCL":    1,
	"ARG":    2,
	"THIS":   3,
	"THAT":   4,
	"SCREEN": 0x4000,
	"KBD":    0x6000,
}

func init() {
	for i := uint16(0); i < 16; i++ {
		predefined[fmt.Sprintf("R%d", i)] = i
	}
}

// firstVariable is where the assembler starts allocating variables.
const firstVariable = 16

type Assembler struct {
	symbols map[string]uint16
	nextVar uint16
}

type parsedLine struct {
	lineNo int
	label  string // "(LOOP)"
	symbol string // "@LOOP" or "@12"
	dest   string
	comp   string
	jump   string
}

func (p parsedLine) isInstruction() bool {
	return p.symbol != "" || p.comp != ""
}

func NewAssembler() *Assembler {
	a := &Assembler{
		symbols: make(map[string]uint16, len(predefined)),
		nextVar: firstVariable,
	}
	for k, v := range predefined {
		a.symbols[k] = v
	}
	return a
}

// Assemble translates Hack assembly into ROM words. The returned source map
// takes a ROM address to its 1-based source line.
func Assemble(code string) ([]uint16, map[uint16]int, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) ([]uint16, map[uint16]int, error) {
	lines, err := parseLines(code)
	if err != nil {
		return nil, nil, err
	}
	if err := a.pass1(lines); err != nil {
		return nil, nil, err
	}
	return a.pass2(lines)
}

// Symbol returns the address bound to name after Assemble, covering
// predefined symbols, labels and variables.
func (a *Assembler) Symbol(name string) (uint16, bool) {
	v, ok := a.symbols[name]
	return v, ok
}

func parseLines(code string) ([]parsedLine, error) {
	var out []parsedLine
	for i, raw := range strings.Split(code, "\n") {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, err
		}
		if p.label != "" || p.isInstruction() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (a *Assembler) pass1(lines []parsedLine) error {
	var address uint32

	for _, p := range lines {
		if p.label != "" {
			if _, exists := a.symbols[p.label]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", p.label, p.lineNo)
			}
			a.symbols[p.label] = uint16(address)
			continue
		}
		address++
		if address > 0x8000 {
			return fmt.Errorf("program too large near line %d", p.lineNo)
		}
	}

	return nil
}

func (a *Assembler) pass2(lines []parsedLine) ([]uint16, map[uint16]int, error) {
	program := make([]uint16, 0, len(lines))
	sourceMap := make(map[uint16]int)

	for _, p := range lines {
		if !p.isInstruction() {
			continue
		}
		sourceMap[uint16(len(program))] = p.lineNo

		if p.symbol != "" {
			v, err := a.resolve(p.symbol, p.lineNo)
			if err != nil {
				return nil, nil, err
			}
			program = append(program, v)
			continue
		}

		comp, ok := compCodes[p.comp]
		if !ok {
			return nil, nil, fmt.Errorf("invalid comp '%s' on line %d", p.comp, p.lineNo)
		}
		dest, err := parseDest(p.dest, p.lineNo)
		if err != nil {
			return nil, nil, err
		}
		jump, ok := jumpCodes[p.jump]
		if !ok {
			return nil, nil, fmt.Errorf("invalid jump '%s' on line %d", p.jump, p.lineNo)
		}
		program = append(program, cpu.EncodeC(comp, dest, jump))
	}

	return program, sourceMap, nil
}

// resolve turns an A-instruction operand into a value, allocating a new
// variable for unknown symbols.
func (a *Assembler) resolve(token string, lineNo int) (uint16, error) {
	if token[0] >= '0' && token[0] <= '9' {
		v, err := strconv.ParseUint(token, 10, 16)
		if err != nil || v > 0x7FFF {
			return 0, fmt.Errorf("constant out of range on line %d: %s", lineNo, token)
		}
		return uint16(v), nil
	}
	if !isSymbol(token) {
		return 0, fmt.Errorf("invalid symbol '%s' on line %d", token, lineNo)
	}
	if v, ok := a.symbols[token]; ok {
		return v, nil
	}
	v := a.nextVar
	a.symbols[token] = v
	a.nextVar++
	return v, nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	switch {
	case strings.HasPrefix(line, "("):
		if !strings.HasSuffix(line, ")") {
			return p, fmt.Errorf("invalid label on line %d", lineNo)
		}
		label := strings.TrimSpace(line[1 : len(line)-1])
		if !isSymbol(label) {
			return p, fmt.Errorf("invalid label '%s' on line %d", label, lineNo)
		}
		p.label = label
		return p, nil

	case strings.HasPrefix(line, "@"):
		p.symbol = strings.TrimSpace(line[1:])
		if p.symbol == "" {
			return p, fmt.Errorf("missing operand on line %d", lineNo)
		}
		return p, nil
	}

	line = strings.Join(strings.Fields(line), "")
	if eq := strings.IndexByte(line, '='); eq >= 0 {
		p.dest = line[:eq]
		line = line[eq+1:]
	}
	if semi := strings.IndexByte(line, ';'); semi >= 0 {
		p.jump = line[semi+1:]
		line = line[:semi]
	}
	p.comp = line
	if p.comp == "" {
		return p, fmt.Errorf("missing comp on line %d", lineNo)
	}
	return p, nil
}

func parseDest(dest string, lineNo int) (uint16, error) {
	var bits uint16
	for _, r := range dest {
		var bit uint16
		switch r {
		case 'A':
			bit = cpu.DestA
		case 'D':
			bit = cpu.DestD
		case 'M':
			bit = cpu.DestM
		default:
			return 0, fmt.Errorf("invalid dest '%s' on line %d", dest, lineNo)
		}
		if bits&bit != 0 {
			return 0, fmt.Errorf("invalid dest '%s' on line %d", dest, lineNo)
		}
		bits |= bit
	}
	return bits, nil
}

func stripComments(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		return line[:i]
	}
	return line
}

// isSymbol accepts letters, digits, '_', '.', '$' and ':' not starting
// with a digit.
func isSymbol(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 && unicode.IsDigit(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("_.$:", r) {
			return false
		}
	}

	return true
}
