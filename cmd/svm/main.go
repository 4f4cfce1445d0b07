// svm assembles, runs and inspects programs for the stack virtual machine.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/psilLang/svm/pkg/config"
	"github.com/psilLang/svm/pkg/version"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

var (
	configPath string
	noColor    bool
	trace      bool
)

func main() {
	app := cli.NewApp()
	app.Name = "svm"
	app.Usage = "stack virtual machine toolchain"
	app.Version = fmt.Sprintf("%s (format %d)", version.String, version.Number)

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "config",
			Value:       config.FileName,
			Usage:       "path to the configuration file",
			Destination: &configPath,
		},
		cli.BoolFlag{
			Name:        "no-color",
			Usage:       "disable colored diagnostics",
			Destination: &noColor,
		},
		cli.BoolFlag{
			Name:        "trace",
			Usage:       "log every executed instruction",
			Destination: &trace,
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "asm",
			Aliases:   []string{"a"},
			Usage:     "Assemble a source file into a container",
			ArgsUsage: "<file.svm>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "o, output", Usage: "output path (default <file>.svmo)"},
				cli.BoolFlag{Name: "debug", Usage: "keep debug metadata in the container"},
			},
			Action: cmdAsm,
		},
		{
			Name:      "run",
			Aliases:   []string{"r"},
			Usage:     "Run a source file or container",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				cli.Uint64Flag{Name: "max-steps", Usage: "stop after n instructions (0 = unbounded)"},
				cli.BoolFlag{Name: "dump", Usage: "print the stack and heap when the program ends"},
				cli.StringFlag{Name: "snapshot", Usage: "write a CBOR snapshot of the final state to `path`"},
			},
			Action: cmdRun,
		},
		{
			Name:      "disasm",
			Aliases:   []string{"d"},
			Usage:     "Disassemble a source file or container",
			ArgsUsage: "<file>",
			Action:    cmdDisasm,
		},
		{
			Name:      "dump",
			Usage:     "Print a snapshot written by run --snapshot",
			ArgsUsage: "<snapshot>",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "resume", Usage: "continue execution from the snapshot before printing"},
			},
			Action: cmdDump,
		},
		{
			Name:   "repl",
			Usage:  "Read and execute instructions interactively",
			Action: cmdRepl,
		},
	}

	app.Before = func(c *cli.Context) error {
		color.NoColor = color.NoColor || noColor
		return nil
	}
	app.After = func(c *cli.Context) error {
		_ = zap.L().Sync()
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		report(err)
		os.Exit(1)
	}
}
