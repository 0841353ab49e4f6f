// Command vmdump shows each translation stage for one VM file: the source,
// the parsed commands and the generated assembly.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hackvm/pkg/codegen"
	"hackvm/pkg/vm"
)

const testSource = `function Sys.init 0
push constant 2
push constant 3
add
label HALT
goto HALT
`

func main() {
	bootstrap := flag.Bool("bootstrap", false, "prepend the bootstrap")
	flag.Parse()

	src := testSource
	unit := codegen.DefaultUnit
	if flag.NArg() > 0 {
		data, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
		base := filepath.Base(flag.Arg(0))
		unit = strings.TrimSuffix(base, filepath.Ext(base))
	}

	fmt.Printf("Source:\n%s\n", src)

	// Parse
	cmds, err := vm.Parse(strings.NewReader(src))
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse error:", err)
		os.Exit(1)
	}

	fmt.Printf("Commands (%d)\n", len(cmds))
	for _, c := range cmds {
		fmt.Println(" ", c)
	}
	fmt.Println()

	// code generation
	var buf bytes.Buffer
	eng := codegen.NewEngine(&buf, codegen.Options{Bootstrap: *bootstrap})
	eng.SetUnit(unit)
	for _, c := range cmds {
		eng.Write(c)
	}
	if err := eng.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, "codegen error:", err)
		os.Exit(1)
	}

	fmt.Println("Generated Assembly")
	fmt.Print(buf.String())
	fmt.Println()
	fmt.Printf("unit %s: %d instructions\n", unit, eng.Instructions())
}
