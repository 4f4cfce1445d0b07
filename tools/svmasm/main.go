// svmasm assembles .svm sources into program containers in bulk.
//
// Usage: go run ./tools/svmasm -o build examples/*.svm
//
// Each input produces <outdir>/<name>.svmo. With -verify the written file is
// read back and compared cell by cell against the assembled program.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/psilLang/svm/pkg/asm"
	"github.com/psilLang/svm/pkg/container"
	"github.com/psilLang/svm/pkg/types"
	"github.com/psilLang/svm/pkg/vm"
	"go.uber.org/zap"
)

func main() {
	outDir := flag.String("o", "build", "Output directory")
	debug := flag.Bool("debug", false, "Keep debug metadata")
	disasm := flag.Bool("disasm", false, "Print disassembly")
	verify := flag.Bool("verify", false, "Read each container back and compare")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: svmasm [-o outdir] [-debug] [-disasm] [-verify] <file.svm>...")
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fail(err)
	}
	for _, path := range flag.Args() {
		out, p, err := assembleFile(path, *outDir, *debug)
		if err != nil {
			fail(fmt.Errorf("%s: %w", path, err))
		}
		logger.Info("assembled", zap.String("source", path), zap.String("output", out), zap.Int("cells", len(p)))

		if *disasm {
			fmt.Printf("=== %s (%d cells) ===\n", filepath.Base(path), len(p))
			fmt.Print(asm.Disassemble(p, vm.ReservedAllocation))
		}
		if *verify {
			if err := verifyFile(out, p); err != nil {
				fail(fmt.Errorf("%s: %w", out, err))
			}
		}
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("error:"), err)
	os.Exit(1)
}

func assembleFile(path, outDir string, debug bool) (string, types.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	p, err := asm.Assemble(path, string(src), asm.WithDebug(debug))
	if err != nil {
		return "", nil, err
	}

	baseName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(outDir, baseName+".svmo")
	data, err := container.Encode(p, debug)
	if err != nil {
		return "", nil, err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", nil, fmt.Errorf("write: %w", err)
	}
	return out, p, nil
}

func verifyFile(path string, want types.Program) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f, err := container.Decode(data)
	if err != nil {
		return err
	}
	if len(f.Program) != len(want) {
		return fmt.Errorf("read back %d cells, wrote %d", len(f.Program), len(want))
	}
	for i := range want {
		if !want[i].StrictEqual(f.Program[i]) {
			return fmt.Errorf("cell %d: wrote %s, read back %s", i, want[i], f.Program[i])
		}
	}
	return nil
}
