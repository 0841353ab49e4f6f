package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxIndex is the largest segment index or constant a command may carry.
// The target's A-instruction holds a 15-bit literal.
const MaxIndex = 0x7FFF

// SyntaxError reports a malformed source line.
type SyntaxError struct {
	Line int    // 1-based source line
	Text string // the line after comment stripping
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("vm: line %d: %s", e.Line, e.Msg)
}

// Parse reads VM source and returns its commands in order.
// It stops at the first malformed line.
func Parse(r io.Reader) ([]Command, error) {
	var cmds []Command

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		cmd, err := ParseLine(sc.Text(), lineNo)
		if err != nil {
			return nil, err
		}
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("vm: read source: %w", err)
	}

	return cmds, nil
}

// ParseLine parses a single source line. Blank and comment-only lines
// yield a nil Command and a nil error.
func ParseLine(raw string, lineNo int) (Command, error) {
	line := strings.TrimSpace(stripComment(raw))
	if line == "" {
		return nil, nil
	}

	fields := strings.Fields(line)
	fail := func(format string, args ...any) (Command, error) {
		return nil, &SyntaxError{Line: lineNo, Text: line, Msg: fmt.Sprintf(format, args...)}
	}
	want := func(n int) bool { return len(fields) == n+1 }

	switch kw := fields[0]; kw {
	case "push", "pop":
		if !want(2) {
			return fail("%s expects a segment and an index", kw)
		}
		seg, ok := ParseSegment(fields[1])
		if !ok {
			return fail("unknown segment %q", fields[1])
		}
		idx, err := parseIndex(fields[2])
		if err != nil {
			return fail("%s", err)
		}
		if err := checkSegmentIndex(seg, idx); err != nil {
			return fail("%s", err)
		}
		if kw == "push" {
			return &Push{Segment: seg, Index: idx}, nil
		}
		if seg == Constant {
			return fail("cannot pop to the constant segment")
		}
		return &Pop{Segment: seg, Index: idx}, nil

	case "label", "goto", "if-goto":
		if !want(1) {
			return fail("%s expects a label name", kw)
		}
		if !IsIdentifier(fields[1]) {
			return fail("invalid label name %q", fields[1])
		}
		switch kw {
		case "label":
			return &Label{Name: fields[1]}, nil
		case "goto":
			return &Goto{Name: fields[1]}, nil
		default:
			return &IfGoto{Name: fields[1]}, nil
		}

	case "function", "call":
		if !want(2) {
			return fail("%s expects a name and a count", kw)
		}
		if !IsIdentifier(fields[1]) {
			return fail("invalid function name %q", fields[1])
		}
		if IsStaticName(fields[1]) {
			return fail("function name %q has the form of a static symbol", fields[1])
		}
		n, err := parseIndex(fields[2])
		if err != nil {
			return fail("%s", err)
		}
		if kw == "function" {
			return &Function{Name: fields[1], Locals: n}, nil
		}
		return &Call{Function: fields[1], Args: n}, nil

	case "return":
		if !want(0) {
			return fail("return takes no operands")
		}
		return &Return{}, nil
	}

	op, ok := ParseOp(fields[0])
	if !ok {
		return fail("unknown command %q", fields[0])
	}
	if !want(0) {
		return fail("%s takes no operands", op)
	}
	return &Arithmetic{Op: op}, nil
}

// IsIdentifier reports whether s is a legal VM symbol: a sequence of
// letters, digits, '_', '.' and ':' not starting with a digit.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '.', r == ':':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// IsStaticName reports whether name ends in a dot followed only by digits,
// the form static variables take in the output ("Main.3").
func IsStaticName(name string) bool {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return false
	}
	for _, r := range name[i+1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		return line[:i]
	}
	return line
}

func parseIndex(tok string) (int, error) {
	n, err := strconv.ParseUint(tok, 10, 16)
	if err != nil || n > MaxIndex {
		return 0, fmt.Errorf("invalid index %q", tok)
	}
	return int(n), nil
}

func checkSegmentIndex(seg Segment, idx int) error {
	switch seg {
	case Pointer:
		if idx > 1 {
			return fmt.Errorf("pointer index %d out of range 0..1", idx)
		}
	case Temp:
		if idx > 7 {
			return fmt.Errorf("temp index %d out of range 0..7", idx)
		}
	}
	return nil
}
