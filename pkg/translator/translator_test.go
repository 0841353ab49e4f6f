package translator

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"hackvm/internal/asm"
	"hackvm/internal/cpu"
	"hackvm/pkg/codegen"
	"hackvm/pkg/config"
	"hackvm/pkg/vm"
)

const mainSrc = `// doubles its argument
function Main.double 0
push argument 0
push argument 0
add
return
`

const sysSrc = `function Sys.init 0
push constant 21
call Main.double 1
pop static 0
label HALT
goto HALT
`

func writeFile(dir, name, content string) string {
	p := filepath.Join(dir, name)
	Expect(os.WriteFile(p, []byte(content), 0o644)).To(Succeed())
	return p
}

func memOpen(files map[string]string) func(string) (io.ReadCloser, error) {
	return func(path string) (io.ReadCloser, error) {
		src, ok := files[path]
		if !ok {
			return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
		}
		return io.NopCloser(strings.NewReader(src)), nil
	}
}

var _ = Describe("Resolve", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("should resolve a single file", func() {
		p := writeFile(dir, "Main.vm", mainSrc)

		units, out, err := Resolve(p, ".vm")

		Expect(err).NotTo(HaveOccurred())
		Expect(units).To(Equal([]Unit{{Name: "Main", Path: p}}))
		Expect(out).To(Equal(filepath.Join(dir, "Main.asm")))
	})

	It("should resolve a directory in name order", func() {
		prog := filepath.Join(dir, "Prog")
		Expect(os.Mkdir(prog, 0o755)).To(Succeed())
		writeFile(prog, "Sys.vm", sysSrc)
		writeFile(prog, "Main.vm", mainSrc)
		writeFile(prog, "notes.txt", "not vm code")
		Expect(os.Mkdir(filepath.Join(prog, "Nested.vm"), 0o755)).To(Succeed())

		units, out, err := Resolve(prog, ".vm")

		Expect(err).NotTo(HaveOccurred())
		Expect(units).To(Equal([]Unit{
			{Name: "Main", Path: filepath.Join(prog, "Main.vm")},
			{Name: "Sys", Path: filepath.Join(prog, "Sys.vm")},
		}))
		Expect(out).To(Equal(filepath.Join(prog, "Prog.asm")))
	})

	It("should honour a custom extension", func() {
		writeFile(dir, "Main.vm", mainSrc)
		p := writeFile(dir, "Lib.stk", mainSrc)

		units, _, err := Resolve(dir, ".stk")

		Expect(err).NotTo(HaveOccurred())
		Expect(units).To(Equal([]Unit{{Name: "Lib", Path: p}}))
	})

	It("should reject a file whose name is not an identifier", func() {
		p := writeFile(dir, "my-prog.vm", mainSrc)

		_, _, err := Resolve(p, ".vm")

		Expect(err).To(MatchError(ContainSubstring(`unit name "my-prog" is not a valid identifier`)))
		Expect(err.Error()).To(HavePrefix("resolve " + p))
	})

	It("should reject a directory holding a badly named unit", func() {
		writeFile(dir, "Main.vm", mainSrc)
		bad := writeFile(dir, "2fast.vm", mainSrc)

		units, _, err := Resolve(dir, ".vm")

		Expect(units).To(BeNil())
		Expect(err).To(MatchError(ContainSubstring("resolve " + bad)))
	})

	It("should report a directory without units", func() {
		writeFile(dir, "README", "empty")

		_, _, err := Resolve(dir, ".vm")

		Expect(err).To(MatchError(ErrNoUnits))
	})

	It("should reject a file with the wrong extension", func() {
		p := writeFile(dir, "Main.asm", "@0")

		_, _, err := Resolve(p, ".vm")

		Expect(err).To(MatchError(ContainSubstring("not a .vm file")))
	})

	It("should fail on a missing path", func() {
		_, _, err := Resolve(filepath.Join(dir, "missing.vm"), ".vm")

		Expect(err).To(MatchError(os.ErrNotExist))
	})
})

var _ = Describe("Translator", func() {
	var (
		mockCtrl *gomock.Controller
		sink     *MockSink
		tr       *Translator
		created  []string
		units    []Unit
		errBoom  = errors.New("boom")
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		sink = NewMockSink(mockCtrl)
		created = nil

		tr = New(config.Default())
		tr.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		tr.Open = memOpen(map[string]string{
			"Main.vm": mainSrc,
			"Sys.vm":  sysSrc,
			"Bad.vm":  "push constant 1\npush heap 2\n",
		})
		tr.Create = func(path string) (Sink, error) {
			created = append(created, path)
			return sink, nil
		}
		units = []Unit{
			{Name: "Main", Path: "Main.vm"},
			{Name: "Sys", Path: "Sys.vm"},
		}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should write every unit to one output", func() {
		var buf bytes.Buffer
		sink.EXPECT().Write(gomock.Any()).DoAndReturn(buf.Write).AnyTimes()
		sink.EXPECT().Close().Return(nil)

		reports, err := tr.Translate(units, "out.asm")

		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(Equal([]string{"out.asm"}))
		Expect(reports).To(HaveLen(2))
		Expect(reports[0].Name).To(Equal("Main"))
		Expect(reports[0].Commands).To(Equal(5))
		Expect(reports[1].Name).To(Equal("Sys"))
		Expect(reports[1].Commands).To(Equal(6))

		code := buf.String()
		Expect(code).To(ContainSubstring("(Main.double)"))
		Expect(code).To(ContainSubstring("(Sys.init$HALT)"))
		Expect(code).To(ContainSubstring("@Sys.0"))
		Expect(code).To(ContainSubstring("// push constant 21"))
		Expect(strings.Index(code, "(Main.double)")).
			To(BeNumerically("<", strings.Index(code, "(Sys.init)")))

		total := reports[0].Instructions + reports[1].Instructions
		Expect(instructionCount(code)).To(Equal(total))
	})

	It("should drop comments when disabled", func() {
		cfg := config.Default()
		cfg.Comments = false
		quiet := New(cfg)
		quiet.Logger = tr.Logger
		quiet.Open = tr.Open
		quiet.Create = tr.Create

		var buf bytes.Buffer
		sink.EXPECT().Write(gomock.Any()).DoAndReturn(buf.Write).AnyTimes()
		sink.EXPECT().Close().Return(nil)

		_, err := quiet.Translate(units, "out.asm")

		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).NotTo(ContainSubstring("//"))
	})

	It("should report a write failure at flush", func() {
		sink.EXPECT().Write(gomock.Any()).Return(0, errBoom).AnyTimes()
		sink.EXPECT().Close().Return(nil)

		reports, err := tr.Translate(units, "out.asm")

		Expect(reports).To(BeNil())
		Expect(err).To(MatchError(errBoom))
		Expect(err.Error()).To(HavePrefix("flush out.asm"))
	})

	It("should report a close failure", func() {
		sink.EXPECT().Write(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return len(p), nil
		}).AnyTimes()
		sink.EXPECT().Close().Return(errBoom)

		reports, err := tr.Translate(units, "out.asm")

		Expect(reports).To(BeNil())
		Expect(err).To(MatchError(errBoom))
		Expect(err.Error()).To(HavePrefix("close out.asm"))
	})

	It("should report the write failure over a close failure", func() {
		sink.EXPECT().Write(gomock.Any()).Return(0, errBoom).AnyTimes()
		sink.EXPECT().Close().Return(errors.New("close failed"))

		_, err := tr.Translate(units, "out.asm")

		Expect(err.Error()).To(HavePrefix("flush out.asm"))
	})

	It("should report a create failure", func() {
		tr.Create = func(string) (Sink, error) { return nil, errBoom }

		_, err := tr.Translate(units, "out.asm")

		Expect(err).To(MatchError(errBoom))
		Expect(err.Error()).To(HavePrefix("create out.asm"))
	})

	It("should not create the output when a unit fails to parse", func() {
		units = append(units, Unit{Name: "Bad", Path: "Bad.vm"})

		_, err := tr.Translate(units, "out.asm")

		Expect(created).To(BeEmpty())
		var syn *vm.SyntaxError
		Expect(errors.As(err, &syn)).To(BeTrue())
		Expect(syn.Line).To(Equal(2))
		Expect(err.Error()).To(HavePrefix("translate Bad.vm: vm: line 2:"))
	})

	It("should report a unit that cannot be opened", func() {
		_, err := tr.Translate([]Unit{{Name: "Gone", Path: "Gone.vm"}}, "out.asm")

		Expect(created).To(BeEmpty())
		Expect(err).To(MatchError(os.ErrNotExist))
	})

	It("should refuse an empty unit list", func() {
		_, err := tr.Translate(nil, "out.asm")

		Expect(err).To(MatchError(ErrNoUnits))
		Expect(created).To(BeEmpty())
	})

	It("should log units and commands", func() {
		var logs bytes.Buffer
		tr.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: LevelTrace}))
		sink.EXPECT().Write(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return len(p), nil
		}).AnyTimes()
		sink.EXPECT().Close().Return(nil)

		_, err := tr.Translate(units, "out.asm")

		Expect(err).NotTo(HaveOccurred())
		out := logs.String()
		Expect(out).To(ContainSubstring(`msg="translated unit" unit=Main commands=5`))
		Expect(out).To(ContainSubstring(`cmd="call Main.double 1"`))
		Expect(out).To(ContainSubstring(`msg="wrote output" path=out.asm units=2`))
	})
})

var _ = Describe("Run", func() {
	It("should translate a directory into a runnable program", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "Double")
		Expect(os.Mkdir(dir, 0o755)).To(Succeed())
		writeFile(dir, "Main.vm", mainSrc)
		writeFile(dir, "Sys.vm", sysSrc)

		cfg := config.Default()
		cfg.Bootstrap = true
		tr := New(cfg)
		tr.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

		reports, out, err := tr.Run(dir, "")

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(filepath.Join(dir, "Double.asm")))
		Expect(reports).To(HaveLen(2))

		code, err := os.ReadFile(out)
		Expect(err).NotTo(HaveOccurred())

		a := asm.NewAssembler()
		program, _, err := a.Assemble(string(code))
		Expect(err).NotTo(HaveOccurred())

		c := cpu.NewCPU(program)
		Expect(c.Run()).To(Succeed())

		addr, ok := a.Symbol(codegen.StaticSymbol("Sys", 0))
		Expect(ok).To(BeTrue())
		Expect(c.Word(addr)).To(Equal(int16(42)))
	})

	It("should honour an explicit output path", func() {
		dir := GinkgoT().TempDir()
		in := writeFile(dir, "Main.vm", mainSrc)
		want := filepath.Join(dir, "custom.asm")

		tr := New(config.Default())
		tr.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

		_, out, err := tr.Run(in, want)

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(want))
		Expect(want).To(BeARegularFile())
		Expect(filepath.Join(dir, "Main.asm")).NotTo(BeAnExistingFile())
	})
})

var _ = Describe("RenderSummary", func() {
	It("should list units with totals", func() {
		out := RenderSummary("Double", []UnitReport{
			{Name: "Main", Path: "Main.vm", Commands: 5, Instructions: 40},
			{Name: "Sys", Path: "Sys.vm", Commands: 6, Instructions: 60},
		})

		Expect(out).To(ContainSubstring("Double"))
		Expect(out).To(ContainSubstring("Main.vm"))
		Expect(out).To(ContainSubstring("Sys.vm"))
		Expect(out).To(ContainSubstring("11"))
		Expect(out).To(ContainSubstring("100"))
	})
})

// instructionCount counts lines that are neither labels, comments nor blank.
func instructionCount(code string) int {
	n := 0
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "(") {
			continue
		}
		n++
	}
	return n
}
