package run

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	corral "github.com/lunixbochs/corral/go"
	"github.com/lunixbochs/corral/go/arch"
	"github.com/lunixbochs/corral/go/cmd"
	"github.com/lunixbochs/corral/go/models"
	"github.com/lunixbochs/corral/go/models/cpu"
	"github.com/lunixbochs/corral/go/models/trace"
	"github.com/lunixbochs/corral/go/savestate"
)

var runCmd = &cobra.Command{
	Use:   "run [hex|-]",
	Short: "Execute machine code",
	Long: `Map code at --base and execute it until --until, --count or --timeout.

Code is a hex string, or raw bytes on stdin when given as "-".`,
	Example: `  corral run 020202 1c --arch ndh --trace
  corral run --arch x86 --mode 4 --count 10 - < code.bin`,
	PreRun: func(c *cobra.Command, args []string) {
		cmd.BindFlags(c.Flags())
	},
	RunE: func(c *cobra.Command, args []string) error {
		config, err := cmd.LoadConfig()
		if err != nil {
			return err
		}
		code, err := readCode(args, c.InOrStdin())
		if err != nil {
			return err
		}
		if profile, _ := c.Flags().GetString("cpuprofile"); profile != "" {
			f, err := os.Create(profile)
			if err != nil {
				return errors.Wrap(err, "failed to create cpu profile")
			}
			defer f.Close()
			pprof.StartCPUProfile(f)
			defer pprof.StopCPUProfile()
		}
		return Run(config, code, c.OutOrStdout())
	},
}

func init() {
	fs := runCmd.Flags()
	fs.String("arch", "ndh", "architecture name")
	fs.Int("mode", 0, "mode flags")
	fs.Uint64("base", 0x1000, "address to map code at")
	fs.Uint64("size", 0, "bytes to map (default: code length rounded up to a page)")
	fs.Uint64("until", 0, "stop address")
	fs.Uint64("count", 0, "stop after this many instructions")
	fs.Duration("timeout", 0, "stop after this long")

	fs.Bool("trace", false, "enable -btrace -etrace -mtrace -rtrace")
	fs.Bool("btrace", false, "trace basic blocks")
	fs.Bool("etrace", false, "trace execution")
	fs.Bool("mtrace", false, "trace memory access")
	fs.Bool("rtrace", false, "trace register modification")
	fs.String("to", "", "binary trace output file")

	fs.String("state", "", "write a savestate here after the run")
	fs.String("load", "", "load a savestate before mapping code")
	fs.String("cpuprofile", "", "write cpu profile to <file>")
	cmd.Register(runCmd)
}

func readCode(args []string, stdin io.Reader) ([]byte, error) {
	if len(args) == 1 && args[0] == "-" {
		return io.ReadAll(stdin)
	}
	if len(args) == 0 {
		return nil, errors.New("no code given")
	}
	s := strings.Join(args, "")
	s = strings.NewReplacer(" ", "", "\n", "", "\t", "").Replace(s)
	code, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	return code, errors.Wrap(err, "invalid hex code")
}

// Run executes code under config, printing register changes to out.
func Run(config *cmd.Config, code []byte, out io.Writer) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	a, err := arch.ByName(config.Arch)
	if err != nil {
		return err
	}
	e, err := corral.Open(a.Enum, config.Mode)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s mode %#x", a.Name, config.Mode)
	}
	defer e.Close()

	if config.LoadState != "" {
		f, err := os.Open(config.LoadState)
		if err != nil {
			return err
		}
		err = savestate.Load(f, e)
		f.Close()
		if err != nil {
			return errors.Wrap(err, "failed to load savestate")
		}
	}
	size := config.Size
	if size == 0 {
		size = (uint64(len(code)) + e.PageSize() - 1) &^ (e.PageSize() - 1)
	}
	if len(code) > 0 {
		if err := e.MemMap(config.Base, size, cpu.PROT_ALL); err != nil {
			return errors.Wrapf(err, "failed to map code at %#x", config.Base)
		}
		if err := e.MemWrite(config.Base, code); err != nil {
			return err
		}
	}
	until := config.Until
	if until == 0 {
		until = config.Base + uint64(len(code))
	}

	status := models.NewStatusDiff(e, e.Bits())
	status.Changes(false)

	var tw *trace.Writer
	if config.TraceFile != "" {
		f, err := os.Create(config.TraceFile)
		if err != nil {
			return errors.Wrapf(err, "failed to create tracefile '%s'", config.TraceFile)
		}
		defer f.Close()
		if tw, err = trace.NewWriter(f, e); err != nil {
			return err
		}
		tc := trace.Config{Block: config.TraceBlock, Ins: config.TraceIns, Mem: config.TraceMem, Reg: config.TraceReg}
		if err := tw.Attach(tc); err != nil {
			return err
		}
		defer tw.Close()
	}
	if config.Tracing() {
		if err := printTrace(e, config, status, out); err != nil {
			return err
		}
	}

	runErr := e.StartWithOptions(config.Base, until, &corral.StartOptions{Count: config.Count, Timeout: config.Timeout})
	if tw != nil {
		tw.Exit(runErr)
	}
	if changes, err := status.Changes(true); err == nil && changes.Count() > 0 {
		fmt.Fprint(out, changes.String(config.Color))
	}
	if pc, err := e.PC(); err == nil {
		fmt.Fprintf(out, "stopped at %#x: %s\n", pc, corral.ErrOf(runErr))
	}
	if config.StateFile != "" {
		var buf bytes.Buffer
		if err := savestate.Save(&buf, e); err != nil {
			return err
		}
		if err := os.WriteFile(config.StateFile, buf.Bytes(), 0644); err != nil {
			return err
		}
	}
	return runErr
}

// printTrace installs hooks that print execution as it happens.
func printTrace(e *corral.Engine, config *cmd.Config, status *models.StatusDiff, out io.Writer) error {
	if config.TraceBlock || config.TraceReg {
		_, err := e.HookBlock(1, 0, func(e *corral.Engine, addr uint64, size uint32) {
			if config.TraceReg {
				if changes, err := status.Changes(true); err == nil && changes.Count() > 0 {
					fmt.Fprint(out, changes.String(config.Color))
				}
			}
			if config.TraceBlock {
				fmt.Fprintf(out, "block %#x (%d bytes)\n", addr, size)
			}
		})
		if err != nil {
			return err
		}
	}
	if config.TraceIns {
		_, err := e.HookCode(1, 0, func(e *corral.Engine, addr uint64, size uint32) {
			mem, _ := e.MemRead(addr, uint64(size))
			fmt.Fprintf(out, "  %#x: %x\n", addr, mem)
		})
		if err != nil {
			return err
		}
	}
	if config.TraceMem {
		_, err := e.HookMem(cpu.HOOK_MEM_READ|cpu.HOOK_MEM_WRITE, 1, 0, func(e *corral.Engine, access int, addr uint64, size int, value int64) {
			if access == cpu.MEM_WRITE {
				fmt.Fprintf(out, "  W %#x [%d] = %#x\n", addr, size, value)
			} else {
				fmt.Fprintf(out, "  R %#x [%d]\n", addr, size)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}
