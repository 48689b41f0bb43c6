// Command embedvm runs a memory image on the embed VM, the same
// decode/execute loop bassosimone-risc32/cmd/vm wires around the RiSC-32
// VM: open the image, load it, fetch-execute until halt, exit with the
// machine's own exit code.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bassosimone/embed16/pkg/config"
	"github.com/bassosimone/embed16/pkg/embed"
	"github.com/bassosimone/embed16/pkg/ioadapt"
	"github.com/bassosimone/embed16/pkg/trace"
	"github.com/bassosimone/embed16/pkg/vmlog"
)

type options struct {
	trace      bool
	debug      bool
	blockPath  string
	configPath string
	cycleLimit uint64
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options
	var exitCode int

	cmd := &cobra.Command{
		Use:          "embedvm <image> [save-path]",
		Short:        "Run a memory image on the embed 16-bit dual-stack VM",
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := execute(args, opts, stdin, stdout, stderr)
			exitCode = code
			return err
		},
	}
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.BoolVar(&opts.trace, "trace", false, "emit a per-cycle CSV trace to stderr")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug-level logging")
	flags.StringVar(&opts.blockPath, "block", "", "override the path opcode 22 saves to")
	flags.StringVar(&opts.configPath, "config", config.DefaultPath(), "path to an optional TOML defaults file")
	flags.Uint64Var(&opts.cycleLimit, "cycle-limit", 0, "host-side cap on executed cycles (0 = unlimited)")

	if err := cmd.Execute(); err != nil && exitCode == 0 {
		exitCode = 2
	}
	return exitCode
}

func execute(args []string, opts options, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	log, err := vmlog.New(opts.debug)
	if err != nil {
		return 2, fmt.Errorf("cannot build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Error("cannot load config", zap.String("path", opts.configPath), zap.Error(err))
		return 2, err
	}

	imagePath := args[0]
	savePath := imagePath
	if len(args) == 2 {
		savePath = args[1]
	}
	blockPath := opts.blockPath
	if blockPath == "" {
		blockPath = cfg.BlockPath
	}
	if blockPath == "" {
		blockPath = savePath
	}

	f, err := os.Open(imagePath)
	if err != nil {
		log.Error("cannot open image", zap.String("path", imagePath), zap.Error(err))
		return 2, err
	}
	defer f.Close()

	vm := embed.New(ioadapt.NewGetc(stdin), ioadapt.NewPutc(stdout), log)
	vm.BlockPath = blockPath
	vm.SP0, vm.RP0 = cfg.SP0, cfg.RP0

	n := vm.LoadImage(f)
	log.Info("image loaded", zap.String("path", imagePath), zap.Int("cells", n))

	if opts.trace || cfg.Trace {
		vm.Trace = trace.New(stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return int(runUntilHalt(ctx, vm, opts.cycleLimit)), nil
}

// runUntilHalt steps vm until it halts, ctx is cancelled (Ctrl-C or
// SIGTERM), or cycleLimit is reached. cycleLimit is a host-side-only
// safety valve -- it is never visible to the hosted program: on
// cancellation or at the limit stepping simply stops and the current T
// is returned, sign-extended; no EOF sentinel is delivered to the program.
func runUntilHalt(ctx context.Context, vm *embed.VM, cycleLimit uint64) int32 {
	for {
		select {
		case <-ctx.Done():
			return int32(int16(vm.T))
		default:
		}
		if err := vm.Step(); err != nil {
			if !errors.Is(err, embed.ErrHalted) {
				panic(err) // stepALU never returns anything but ErrHalted or nil
			}
			return int32(int16(vm.T))
		}
		if cycleLimit > 0 && vm.Cycle >= cycleLimit {
			return int32(int16(vm.T))
		}
	}
}
