// Package translator drives a translation run: it resolves an input path
// into units, parses each one and feeds a single codegen.Engine whose output
// is flushed once at the end.
package translator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"hackvm/pkg/codegen"
	"hackvm/pkg/config"
	"hackvm/pkg/utils"
	"hackvm/pkg/vm"
)

// LevelTrace logs every translated command.
const LevelTrace = config.LevelTrace

var ErrNoUnits = errors.New("no translation units")

// Unit is one input file. Name qualifies its statics.
type Unit struct {
	Name string
	Path string
}

// Sink is the output the assembly is written to.
type Sink interface {
	io.Writer
	Close() error
}

type UnitReport struct {
	Name         string
	Path         string
	Commands     int
	Instructions int
}

type Translator struct {
	cfg config.Config

	Logger *slog.Logger
	// Create opens the output, truncating it. Defaults to os.Create.
	Create func(path string) (Sink, error)
	// Open opens a unit's source. Defaults to os.Open.
	Open func(path string) (io.ReadCloser, error)
}

func New(cfg config.Config) *Translator {
	return &Translator{
		cfg:    cfg,
		Logger: slog.Default(),
		Create: func(path string) (Sink, error) { return os.Create(path) },
		Open:   func(path string) (io.ReadCloser, error) { return os.Open(path) },
	}
}

// Resolve turns a file or directory path into units and the default output
// path. A file Foo.vm yields Foo.asm next to it; a directory Prog yields
// Prog/Prog.asm built from its ext files in name order.
func Resolve(path, ext string) ([]Unit, string, error) {
	info, err := utils.GetPathInfo(path)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", path, err)
	}

	if !info.IsDir {
		if filepath.Ext(info.Base) != ext {
			return nil, "", fmt.Errorf("resolve %s: not a %s file", path, ext)
		}
		unit := Unit{Name: strings.TrimSuffix(info.Base, ext), Path: info.FullPath}
		if err := checkUnitName(unit); err != nil {
			return nil, "", err
		}
		return []Unit{unit}, strings.TrimSuffix(info.FullPath, ext) + ".asm", nil
	}

	entries, err := os.ReadDir(info.FullPath)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", path, err)
	}
	var units []Unit
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ext {
			continue
		}
		unit := Unit{
			Name: strings.TrimSuffix(ent.Name(), ext),
			Path: filepath.Join(info.FullPath, ent.Name()),
		}
		if err := checkUnitName(unit); err != nil {
			return nil, "", err
		}
		units = append(units, unit)
	}
	if len(units) == 0 {
		return nil, "", fmt.Errorf("resolve %s: %w", path, ErrNoUnits)
	}
	return units, filepath.Join(info.FullPath, info.Base+".asm"), nil
}

// checkUnitName rejects file names that cannot qualify assembler symbols.
func checkUnitName(u Unit) error {
	if !vm.IsIdentifier(u.Name) {
		return fmt.Errorf("resolve %s: unit name %q is not a valid identifier", u.Path, u.Name)
	}
	return nil
}

// Run resolves path and translates it. An empty outPath selects the
// default output path from Resolve.
func (t *Translator) Run(path, outPath string) ([]UnitReport, string, error) {
	units, defaultOut, err := Resolve(path, t.cfg.Extension)
	if err != nil {
		return nil, "", err
	}
	if outPath == "" {
		outPath = defaultOut
	}
	reports, err := t.Translate(units, outPath)
	return reports, outPath, err
}

// Translate parses every unit, then writes them in order to a fresh output
// at outPath. Either all units are written and flushed or an error is
// returned; a parse error leaves outPath untouched.
func (t *Translator) Translate(units []Unit, outPath string) (reports []UnitReport, err error) {
	if len(units) == 0 {
		return nil, ErrNoUnits
	}

	parsed := make([][]vm.Command, len(units))
	for i, u := range units {
		cmds, err := t.parse(u)
		if err != nil {
			return nil, err
		}
		parsed[i] = cmds
	}

	sink, err := t.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", outPath, err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			reports, err = nil, fmt.Errorf("close %s: %w", outPath, cerr)
		}
	}()

	eng := codegen.NewEngine(sink, t.cfg.EngineOptions())
	ctx := context.Background()
	for i, u := range units {
		eng.SetUnit(u.Name)
		start := eng.Instructions()
		for _, c := range parsed[i] {
			if t.Logger.Enabled(ctx, LevelTrace) {
				t.Logger.Log(ctx, LevelTrace, "command", "unit", u.Name, "pc", eng.Instructions(), "cmd", c.String())
			}
			eng.Write(c)
		}

		r := UnitReport{
			Name:         u.Name,
			Path:         u.Path,
			Commands:     len(parsed[i]),
			Instructions: eng.Instructions() - start,
		}
		t.Logger.Debug("translated unit", "unit", r.Name, "commands", r.Commands, "instructions", r.Instructions)
		reports = append(reports, r)
	}

	if err := eng.Flush(); err != nil {
		return nil, fmt.Errorf("flush %s: %w", outPath, err)
	}

	t.Logger.Info("wrote output", "path", outPath, "units", len(units), "instructions", eng.Instructions())
	return reports, nil
}

func (t *Translator) parse(u Unit) ([]vm.Command, error) {
	f, err := t.Open(u.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cmds, err := vm.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("translate %s: %w", u.Path, err)
	}
	return cmds, nil
}
