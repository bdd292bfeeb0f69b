package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	corral "github.com/lunixbochs/corral/go"
	"github.com/lunixbochs/corral/go/cpu/ndh"
	"github.com/lunixbochs/corral/go/cpu/unicorn"
	"github.com/lunixbochs/corral/go/savestate"
)

var rootCmd = &cobra.Command{
	Use:           "corral",
	Short:         "Drive CPU emulation engines from the command line",
	Version:       corral.Version(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(viper.GetBool("verbose"))
	},
}

// Register adds a subcommand. Command packages call it from init.
func Register(c *cobra.Command) {
	rootCmd.AddCommand(c)
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is corral.yaml in the user config dir)")
	flags.BoolP("verbose", "v", false, "verbose logging")
	flags.Bool("color", term.IsTerminal(int(os.Stdout.Fd())), "colorize output")
	viper.BindPFlag("verbose", flags.Lookup("verbose"))
	viper.BindPFlag("color", flags.Lookup("color"))

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// setupLogging installs a development logger with --verbose and a production logger otherwise.
func setupLogging(verbose bool) error {
	var log *zap.Logger
	var err error
	if verbose {
		log, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		log, err = cfg.Build()
	}
	if err != nil {
		return err
	}
	corral.SetLogger(log)
	ndh.SetLogger(log)
	unicorn.SetLogger(log)
	savestate.SetLogger(log)
	return nil
}

// Main runs the command line and exits on failure.
func Main() {
	if err := rootCmd.Execute(); err != nil {
		PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

// Execute runs the root command with args, writing output to out.
func Execute(args []string, out io.Writer) error {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	return rootCmd.Execute()
}
