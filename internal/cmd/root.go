// Package cmd implements the autodiff command line.
package cmd

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/njchilds90/autodiff"
	"github.com/njchilds90/autodiff/internal/style"
)

// Execute runs the CLI against the process arguments and returns the exit
// code.
func Execute() int {
	root := NewRootCommand(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		style.PrintError(os.Stderr, err)
		return 1
	}
	return 0
}

// app carries the state shared by every subcommand.
type app struct {
	out, errOut io.Writer
	v           *viper.Viper
	cfgFile     string
}

// NewRootCommand builds the command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut, v: viper.New()}

	root := &cobra.Command{
		Use:   "autodiff",
		Short: "Values and Jacobians of formulas by automatic differentiation",
		Long: `autodiff evaluates formulas at a point and computes their Jacobian, using
forward mode (one dual-number pass per variable) or reverse mode (one
computation graph per formula).

Defaults for mode, workers, output, log-level and extended are read from
$XDG_CONFIG_HOME/autodiff/config.{toml,yaml} and AUTODIFF_* environment
variables; flags override both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cmd.Flags())
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/autodiff/config.toml)")
	pf.String("log-level", "warning", "log level: debug, info, warning, error")
	pf.StringP("output", "o", "", "output format: table, json, latex, plain (default table on a terminal, json otherwise)")
	pf.Bool("extended", false, "also accept abs and sigmoid in formulas")

	root.AddCommand(
		a.newJacobianCommand(),
		a.newEvalCommand(),
		a.newParseCommand(),
		a.newGraphCommand(),
		a.newFunctionsCommand(),
	)
	return root
}

func (a *app) initConfig(flags *pflag.FlagSet) error {
	a.v.SetEnvPrefix("AUTODIFF")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.SetConfigName("config")
		a.v.AddConfigPath(configDir())
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return errors.Wrap(err, "reading config")
		}
	}
	return a.v.BindPFlags(flags)
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "autodiff")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "autodiff")
}

func (a *app) logger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(a.errOut)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	level, err := logrus.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		level = logrus.WarnLevel
	}
	l.SetLevel(level)
	return l
}

// options turns the effective configuration into engine options.
func (a *app) options() ([]autodiff.Option, error) {
	mode, err := autodiff.ParseMode(a.v.GetString("mode"))
	if err != nil {
		return nil, err
	}
	opts := []autodiff.Option{
		autodiff.WithMode(mode),
		autodiff.WithLogger(a.logger()),
		autodiff.WithWorkers(a.v.GetInt("workers")),
	}
	if a.v.GetBool("extended") {
		opts = append(opts, autodiff.WithExtendedFunctions())
	}
	return opts, nil
}

func (a *app) parseOptions() []autodiff.ParseOption {
	if a.v.GetBool("extended") {
		return []autodiff.ParseOption{autodiff.AllowExtended()}
	}
	return nil
}

// outputFormat is the configured format, or table on a terminal and json
// everywhere else.
func (a *app) outputFormat() string {
	if f := a.v.GetString("output"); f != "" {
		return f
	}
	if f, ok := a.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "table"
	}
	return "json"
}
