package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tebeka/atexit"

	"hackvm/pkg/config"
	"hackvm/pkg/translator"
)

func main() {
	inPath := flag.String("in", "", "input .vm file or directory of .vm files")
	outPath := flag.String("out", "", "output assembly path (default: Foo.vm -> Foo.asm, Dir -> Dir/Dir.asm)")
	bootstrap := flag.Bool("bootstrap", false, "emit SP=256 and a call to the entry function first")
	entry := flag.String("entry", "", "entry function called by the bootstrap (default Sys.init)")
	configPath := flag.String("config", "", "YAML settings file; flags override it")
	summary := flag.Bool("summary", false, "print a per-unit summary table")
	verbose := flag.Bool("v", false, "log each translated unit")
	logLevel := flag.String("log-level", "", "trace, debug, info, warn or error (trace logs every command)")
	flag.Parse()

	if *inPath == "" && flag.NArg() == 1 {
		*inPath = flag.Arg(0)
	}
	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in <file.vm|dir>")
		flag.Usage()
		atexit.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			atexit.Exit(1)
		}
	}

	// explicitly set flags win over the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bootstrap":
			cfg.Bootstrap = *bootstrap
		case "entry":
			cfg.Entry = *entry
		case "v":
			cfg.Verbose = *verbose
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(2)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()})))

	tr := translator.New(cfg)
	done := false
	tr.Create = func(path string) (translator.Sink, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		// a failed run must not leave a truncated program behind
		atexit.Register(func() {
			if !done {
				os.Remove(path)
			}
		})
		return f, nil
	}

	reports, output, err := tr.Run(*inPath, *outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "translation failed: %v\n", err)
		if errors.Is(err, translator.ErrNoUnits) {
			atexit.Exit(2)
		}
		atexit.Exit(1)
	}
	done = true

	if *summary {
		fmt.Println(translator.RenderSummary(filepath.Base(output), reports))
	}

	atexit.Exit(0)
}
