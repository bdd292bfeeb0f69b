package archs

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lunixbochs/corral/go/arch"
	"github.com/lunixbochs/corral/go/cmd"
	"github.com/lunixbochs/corral/go/models"
)

var archsCmd = &cobra.Command{
	Use:   "archs [name]",
	Short: "List registered architectures and their registers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		list := arch.All()
		if len(args) == 1 {
			a, err := arch.ByName(args[0])
			if err != nil {
				return err
			}
			list = []*models.Arch{a}
		}
		for _, a := range list {
			printArch(c.OutOrStdout(), a)
		}
		return nil
	},
}

func init() { cmd.Register(archsCmd) }

func printArch(w io.Writer, a *models.Arch) {
	fmt.Fprintf(w, "%s (arch %d, page size %#x)\n", a.Name, a.Enum, a.PageSize)
	for _, m := range a.Modes {
		order := "little"
		if m.Order.String() == "BigEndian" {
			order = "big"
		}
		names := make([]string, 0, len(m.Regs))
		for _, r := range m.RegList() {
			names = append(names, r.Name)
		}
		fmt.Fprintf(w, "  mode %#x: %d-bit %s endian\n", m.Flags, m.Bits, order)
		fmt.Fprintf(w, "    regs: %s\n", strings.Join(names, " "))
	}
	if len(a.Insns) > 0 {
		var insns []string
		for _, name := range a.Insns {
			insns = append(insns, name)
		}
		sort.Strings(insns)
		fmt.Fprintf(w, "  insn hooks: %s\n", strings.Join(insns, " "))
	}
}
