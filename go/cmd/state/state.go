package state

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lunixbochs/corral/go/arch"
	"github.com/lunixbochs/corral/go/cmd"
	"github.com/lunixbochs/corral/go/savestate"
)

var protNames = []string{"---", "r--", "-w-", "rw-", "--x", "r-x", "-wx", "rwx"}

var stateCmd = &cobra.Command{
	Use:   "state <file>",
	Short: "Print a savestate's header, registers and regions",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		s, err := savestate.Read(f)
		if err != nil {
			return err
		}
		w := c.OutOrStdout()
		name := fmt.Sprintf("arch %d", s.Arch)
		regNames := map[int]string{}
		if a, err := arch.Get(int(s.Arch)); err == nil {
			name = a.Name
			if m, err := a.Mode(int(s.Mode)); err == nil {
				for _, r := range m.RegList() {
					regNames[r.Enum] = r.Name
				}
			}
		}
		fmt.Fprintf(w, "%s mode %#x, savestate v%d\n", name, s.Mode, s.Version)
		fmt.Fprintln(w, "registers:")
		for _, r := range s.Regs {
			reg := regNames[int(r.Enum)]
			if reg == "" {
				reg = fmt.Sprintf("#%d", r.Enum)
			}
			fmt.Fprintf(w, "  %6s %#x\n", reg, r.Val)
		}
		fmt.Fprintln(w, "regions:")
		for _, r := range s.Regions {
			fmt.Fprintf(w, "  %#x-%#x %s\n", r.Addr, r.Addr+r.Size, protNames[r.Prot&7])
		}
		return nil
	},
}

func init() { cmd.Register(stateCmd) }
