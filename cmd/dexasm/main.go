package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var red = color.New(color.FgRed).SprintFunc()

// cli holds the state shared by the commands of one invocation.
type cli struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
	log    zerolog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), stdout: stdout, stderr: stderr, log: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "dexasm",
		Short:         "Assemble Dalvik method bodies into DEX code items",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default is $HOME/.dexasm.yaml)")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	flags.Bool("no-color", false, "disable colored output")
	flags.Bool("align64", false, "align wide registers to even numbers")
	flags.String("positions", "lines", "positions to record: none, lines or important")
	flags.Bool("validate", false, "decode and check every debug info stream")
	flags.Int("concurrency", 0, "maximum methods assembled at once (0 means no limit)")
	_ = c.v.BindPFlags(flags)

	root.AddCommand(c.asmCmd(), c.disCmd(), c.versionCmd())
	return root
}

// setup reads the config file and environment and configures logging and
// colors. It runs before every command.
func (c *cli) setup(cmd *cobra.Command) error {
	_ = c.v.BindPFlags(cmd.Flags())
	c.v.SetEnvPrefix("DEXASM")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	if cfgFile := c.v.GetString("config"); cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	} else if home, err := homedir.Dir(); err == nil {
		c.v.AddConfigPath(home)
		c.v.SetConfigName(".dexasm")
		c.v.SetConfigType("yaml")
		if err := c.v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("reading config: %w", err)
			}
		}
	}

	if c.v.GetBool("no-color") || os.Getenv("NO_COLOR") != "" || !isTerminal(c.stdout) {
		color.NoColor = true
	}
	level, err := zerolog.ParseLevel(c.v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level %q", c.v.GetString("log-level"))
	}
	c.log = newLogger(c.stderr, level)
	if used := c.v.ConfigFileUsed(); used != "" {
		c.log.Debug().Str("file", used).Msg("loaded config")
	}
	return nil
}

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		os.Exit(1)
	}
}
