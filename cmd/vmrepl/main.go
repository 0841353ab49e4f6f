// Command vmrepl translates VM commands as they are typed and prints the
// assembly each one produces. Engine state (scopes, statics, the ROM
// counter) carries over between lines.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"hackvm/pkg/codegen"
	"hackvm/pkg/vm"
)

const (
	banner      = "hackvm repl. Type VM commands, :help for more, :quit to exit."
	prompt      = "vm> "
	historyFile = ".hackvm_history"
)

// session holds one engine and the buffer it writes into.
type session struct {
	buf    bytes.Buffer
	eng    *codegen.Engine
	lineNo int
}

func newSession(opts codegen.Options) *session {
	s := &session{}
	s.eng = codegen.NewEngine(&s.buf, opts)
	return s
}

// drain returns the assembly written since the last call.
func (s *session) drain() string {
	if err := s.eng.Flush(); err != nil {
		return ""
	}
	out := s.buf.String()
	s.buf.Reset()
	return out
}

// eval handles one input line and returns what to print. quit is set by
// :quit.
func (s *session) eval(line string) (out string, quit bool, err error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, ":") {
		return s.meta(line)
	}

	s.lineNo++
	cmd, err := vm.ParseLine(line, s.lineNo)
	if err != nil || cmd == nil {
		return "", false, err
	}

	// engine contract violations panic; report them and keep going
	defer func() {
		if r := recover(); r != nil {
			s.buf.Reset()
			err = fmt.Errorf("%v", r)
		}
	}()
	s.eng.Write(cmd)
	return s.drain(), false, nil
}

func (s *session) meta(line string) (string, bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		return "", true, nil
	case ":unit":
		if len(fields) != 2 || !vm.IsIdentifier(fields[1]) {
			return "", false, errors.New("usage: :unit <Name>")
		}
		s.eng.SetUnit(fields[1])
		return "", false, nil
	case ":state":
		return fmt.Sprintf("unit=%s scope=%s pc=%d\n", s.eng.Unit(), s.eng.Scope(), s.eng.Instructions()), false, nil
	case ":help":
		return ":unit <Name>  switch translation unit (statics)\n" +
			":state        show unit, label scope and ROM counter\n" +
			":quit         exit\n", false, nil
	}
	return "", false, fmt.Errorf("unknown command %s. Type :help", fields[0])
}

func main() {
	os.Exit(run())
}

func run() int {
	fmt.Println(banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	s := newSession(codegen.Options{})
	for {
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Println()
			return 0
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)

		out, quit, err := s.eval(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if quit {
			return 0
		}
		fmt.Print(out)
	}
}
