// kosvm CLI - boots a CPU and runs program images in real time
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/kosvm/host"
	"github.com/chazu/kosvm/manifest"
	"github.com/chazu/kosvm/statstore"
	"github.com/chazu/kosvm/vm"
	"github.com/chazu/kosvm/vm/image"
	"github.com/chazu/kosvm/vm/ops"
)

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0 = warnings only)")
	dir := flag.String("dir", ".", "Directory to search upward from for kosvm.toml")
	ipu := flag.Int("ipu", 0, "Instructions per update (overrides kosvm.toml)")
	stay := flag.Bool("stay", false, "Keep running after the program ends")
	disasm := flag.Bool("disasm", false, "Print the image listing and exit")
	history := flag.Int("history", 0, "Print the last N recorded runs and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kosvm [options] [image]\n\n")
		fmt.Fprintf(os.Stderr, "Boots a CPU and runs the given program image at the configured tick rate.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nConsole commands:\n")
		fmt.Fprintf(os.Stderr, "  :break   abort the running program\n")
		fmt.Fprintf(os.Stderr, "  :stats   print profiler statistics\n")
		fmt.Fprintf(os.Stderr, "  :trace   print the call trace\n")
		fmt.Fprintf(os.Stderr, "  :quit    exit\n")
		fmt.Fprintf(os.Stderr, "Any other line is queued as terminal input.\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  kosvm launch.ksm           # Run launch.ksm, exit when it ends\n")
		fmt.Fprintf(os.Stderr, "  kosvm -disasm launch.ksm   # Show the opcodes in launch.ksm\n")
		fmt.Fprintf(os.Stderr, "  kosvm -history 10          # Show the last 10 runs\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	if err := run(*dir, *ipu, *stay, *disasm, *history, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadManifest(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	if err := m.ApplyEnv(); err != nil {
		return nil, err
	}
	return m, nil
}

func run(dir string, ipu int, stay, disasm bool, history int, args []string) error {
	m, err := loadManifest(dir)
	if err != nil {
		return err
	}
	if ipu > 0 {
		m.CPU.InstructionsPerUpdate = ipu
	}

	if disasm {
		if len(args) != 1 {
			return errors.New("-disasm needs exactly one image")
		}
		return printListing(os.Stdout, args[0])
	}
	if history > 0 {
		return printHistory(os.Stdout, m.StatsPath(), history)
	}
	if len(args) > 1 {
		return errors.New("at most one image may be given")
	}

	console := host.NewConsole(os.Stdout)
	console.Dir = m.Dir

	var opts []vm.Option
	if path := m.StatsPath(); path != "" {
		store, err := statstore.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, vm.WithRunRecorder(store))
	}

	cpu := vm.NewCPU(console, m.CPUConfig(), opts...)
	cpu.Boot()
	if len(args) == 1 {
		program, err := image.Load(args[0], ops.Builtins)
		if err != nil {
			return err
		}
		cpu.RunProgram(program, false)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	worker := host.NewWorker(cpu, m.CPU.TickRate)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return readConsole(gctx, os.Stdin, console, worker, cancel)
	})
	if len(args) == 1 && !stay {
		g.Go(func() error {
			return exitWhenIdle(gctx, worker, cancel)
		})
	}
	return g.Wait()
}

// readConsole feeds stdin lines to the console until ctx is done.
func readConsole(ctx context.Context, r io.Reader, console *host.Console, worker *host.Worker, quit context.CancelFunc) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(ctx, line, console, worker, quit); err != nil {
				return err
			}
		}
	}
}

func handleLine(ctx context.Context, line string, console *host.Console, worker *host.Worker, quit context.CancelFunc) error {
	cmd := strings.TrimSpace(line)
	var fn func(*vm.CPU) any
	switch cmd {
	case ":quit":
		quit()
		return nil
	case ":break":
		fn = func(cpu *vm.CPU) any { cpu.BreakExecution(true); return nil }
	case ":stats":
		fn = func(cpu *vm.CPU) any { cpu.Print(cpu.StatisticsDump()); return nil }
	case ":trace":
		fn = func(cpu *vm.CPU) any {
			for _, entry := range cpu.GetCallTrace() {
				cpu.Print(entry.String())
			}
			return nil
		}
	default:
		console.Feed(line)
		return nil
	}
	if _, err := worker.Do(ctx, fn); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// exitWhenIdle cancels the run once only the interpreter context is left.
func exitWhenIdle(ctx context.Context, worker *host.Worker, quit context.CancelFunc) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v, err := worker.Do(ctx, func(cpu *vm.CPU) any { return cpu.ContextCount() })
			if err != nil {
				return nil
			}
			if v.(int) <= 1 {
				quit()
				return nil
			}
		}
	}
}
