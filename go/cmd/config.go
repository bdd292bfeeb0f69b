package cmd

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

// Config holds the resolved settings shared by subcommands.
type Config struct {
	Arch    string
	Mode    int
	Base    uint64
	Size    uint64
	Until   uint64
	Count   uint64
	Timeout time.Duration

	TraceBlock bool
	TraceIns   bool
	TraceMem   bool
	TraceReg   bool
	TraceFile  string

	Color     bool
	StateFile string
	LoadState string
}

// initConfig reads corral.yaml from the user and system config dirs, and CORRAL_* env vars.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dirs := configdir.New("lunixbochs", "corral")
		for _, dir := range dirs.QueryFolders(configdir.All) {
			viper.AddConfigPath(dir.Path)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("corral")
	}
	viper.SetEnvPrefix("corral")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	// a missing config file is fine
	viper.ReadInConfig()
}

// BindFlags exposes a subcommand's flags to viper under their own names.
func BindFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(f.Name, f)
	})
}

// LoadConfig resolves settings from flags, env and the config file.
func LoadConfig() (*Config, error) {
	c := &Config{
		Arch:    viper.GetString("arch"),
		Mode:    viper.GetInt("mode"),
		Base:    viper.GetUint64("base"),
		Size:    viper.GetUint64("size"),
		Until:   viper.GetUint64("until"),
		Count:   viper.GetUint64("count"),
		Timeout: viper.GetDuration("timeout"),

		TraceBlock: viper.GetBool("btrace"),
		TraceIns:   viper.GetBool("etrace"),
		TraceMem:   viper.GetBool("mtrace"),
		TraceReg:   viper.GetBool("rtrace"),
		TraceFile:  viper.GetString("to"),

		Color:     viper.GetBool("color"),
		StateFile: viper.GetString("state"),
		LoadState: viper.GetString("load"),
	}
	if viper.GetBool("trace") {
		c.TraceBlock, c.TraceIns, c.TraceMem, c.TraceReg = true, true, true, true
	}
	if c.Arch == "" {
		return nil, errors.New("no architecture selected")
	}
	if c.Timeout < 0 {
		return nil, errors.Errorf("invalid timeout %s", c.Timeout)
	}
	return c, nil
}

// Tracing reports whether any trace output was requested.
func (c *Config) Tracing() bool {
	return c.TraceBlock || c.TraceIns || c.TraceMem || c.TraceReg
}
