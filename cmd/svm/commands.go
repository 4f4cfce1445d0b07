package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/psilLang/svm/pkg/asm"
	"github.com/psilLang/svm/pkg/config"
	"github.com/psilLang/svm/pkg/container"
	"github.com/psilLang/svm/pkg/dump"
	"github.com/psilLang/svm/pkg/stdlib"
	"github.com/psilLang/svm/pkg/types"
	"github.com/psilLang/svm/pkg/version"
	"github.com/psilLang/svm/pkg/vm"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

// setup loads the configuration and installs the global logger.
func setup() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log, trace)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	if cfg.Path != "" {
		logger.Debug("config loaded", zap.String("path", cfg.Path))
	}
	return cfg, nil
}

func newLogger(lc config.LogConfig, trace bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if trace {
		level.SetLevel(zap.DebugLevel)
	}
	zc.Level = level
	return zc.Build()
}

func newVM(cfg *config.Config) *vm.VM {
	opts := []vm.Option{vm.WithLogger(zap.L())}
	if cfg.VM.InitialMemory > 0 {
		opts = append(opts, vm.WithInitialMemory(cfg.VM.InitialMemory))
	}
	if cfg.VM.MaxMemory > 0 {
		opts = append(opts, vm.WithMaxMemory(cfg.VM.MaxMemory))
	}
	m := vm.New(opts...)
	if cfg.VM.Natives {
		stdlib.Register(m, os.Stdout)
	}
	return m
}

// loadFile reads either a container or assembly source, telling them apart
// by the container magic.
func loadFile(path string, debug bool) (types.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, []byte(version.Magic)) {
		f, err := container.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return f.Program, nil
	}
	return asm.Assemble(path, string(data), asm.WithDebug(debug))
}

func fileArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%s: expected exactly one file argument", c.Command.Name)
	}
	return c.Args().First(), nil
}

func cmdAsm(c *cli.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	debug := cfg.Assembler.Debug || c.Bool("debug")

	tokens, err := asm.Lex(path, string(src))
	if err != nil {
		return err
	}
	nodes, err := asm.Parse(tokens)
	if err != nil {
		return err
	}

	out := c.String("output")
	if out == "" {
		out = cfg.OutputPath(path)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := container.NewWriter(f, debug).WriteNodes(nodes); err != nil {
		f.Close()
		os.Remove(out)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	zap.L().Info("assembled",
		zap.String("source", path),
		zap.String("output", out),
		zap.Int("nodes", len(nodes)),
		zap.Bool("debug", debug),
	)
	return nil
}

func cmdRun(c *cli.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	p, err := loadFile(path, true)
	if err != nil {
		return err
	}

	maxSteps := cfg.VM.MaxSteps
	if c.IsSet("max-steps") {
		maxSteps = c.Uint64("max-steps")
	}

	m := newVM(cfg)
	m.LoadProgram(p)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	steps, runErr := execute(ctx, m, maxSteps)
	zap.L().Debug("run finished", zap.Uint64("steps", steps), zap.Error(runErr))

	if c.Bool("dump") {
		(&dump.Dumper{Color: !color.NoColor}).All(os.Stderr, m)
	}
	if out := c.String("snapshot"); out != "" {
		data, err := dump.Marshal(dump.Take(m))
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
	}
	return runErr
}

func cmdDisasm(c *cli.Context) error {
	if _, err := setup(); err != nil {
		return err
	}
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	p, err := loadFile(path, true)
	if err != nil {
		return err
	}
	fmt.Print(asm.Disassemble(p, vm.ReservedAllocation))
	return nil
}

func cmdDump(c *cli.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s, err := dump.Unmarshal(data)
	if err != nil {
		return err
	}

	m := newVM(cfg)
	if err := dump.Restore(m, s); err != nil {
		return err
	}

	var runErr error
	if c.Bool("resume") {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		m.Resume()
		_, runErr = execute(ctx, m, cfg.VM.MaxSteps)
	}
	(&dump.Dumper{Color: !color.NoColor}).All(os.Stdout, m)
	return runErr
}

func cmdRepl(c *cli.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	return repl(os.Stdin, os.Stdout, newVM(cfg), cfg.VM.MaxSteps)
}

// repl assembles each input line at the VM's import base, imports it and
// runs it to completion. Stack contents persist between lines.
func repl(in io.Reader, out io.Writer, m *vm.VM, maxSteps uint64) error {
	fmt.Fprintf(out, "svm %s\n", version.String)
	fmt.Fprintln(out, "Type 'stack' to show the stack, 'quit' to exit")

	m.LoadProgram(types.Program{types.Opcode(uint32(vm.HALT))})
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "svm> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "stack":
			printStack(out, m)
			continue
		}

		p, err := asm.Assemble("<repl>", line+"\nHALT", asm.WithBase(m.ImportBase()))
		if err != nil {
			fmt.Fprintln(out, diagnostic(err))
			continue
		}
		m.SetPRI(m.ImportProgram(p))
		m.Resume()
		if _, err := execute(context.Background(), m, maxSteps); err != nil {
			fmt.Fprintln(out, diagnostic(err))
		}
		printStack(out, m)
	}
}

func printStack(out io.Writer, m *vm.VM) {
	vals := m.Stack().Values()
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	fmt.Fprintf(out, "-> [%s]\n", strings.Join(parts, " "))
}

// report prints err to stderr in the diagnostic style.
func report(err error) {
	fmt.Fprintln(os.Stderr, diagnostic(err))
}

func diagnostic(err error) string {
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	blue := color.New(color.FgBlue).SprintFunc()

	var perr *asm.ParseError
	if errors.As(err, &perr) {
		msg := perr.Msg
		if perr.Err != nil {
			msg += ": " + perr.Err.Error()
		}
		return fmt.Sprintf("%s %s %s", red("error:"), blue(perr.Token.Pos.String()+":"), msg)
	}
	var fault *vm.Fault
	if errors.As(err, &fault) {
		return fmt.Sprintf("%s %v", red("fault:"), fault)
	}
	return fmt.Sprintf("%s %v", red("error:"), err)
}
