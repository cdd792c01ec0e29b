package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/gpumath"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     Config
)

var rootCmd = &cobra.Command{
	Use:   "gpumath",
	Short: "Evaluate candidate populations on the GPU",
	Long: `gpumath scores a random population of candidate vectors by their
squared distance to a goal vector. Part of the population is evaluated by
a compute kernel, the rest on the host, and the best candidate is printed.`,
	Version:           gpumath.Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./gpumath.yaml or $HOME/.gpumath/gpumath.yaml)")
	pf.String("log-level", DefaultConfig().LogLevel, "log level: debug, info, warn or error")
	pf.String("adapter", DefaultConfig().Adapter, "adapter preference: hardware or first")
	pf.Duration("poll-timeout", DefaultConfig().PollTimeout, "how long to wait for submitted GPU work")

	_ = v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = v.BindPFlag("adapter", pf.Lookup("adapter"))
	_ = v.BindPFlag("poll_timeout", pf.Lookup("poll-timeout"))
}

func initConfig() {
	configure(v, cfgFile)
}

// setup loads the configuration and installs the logger.
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	if cfg, err = Load(v); err != nil {
		return err
	}
	level, _ := cfg.Level()
	gpumath.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	if used := v.ConfigFileUsed(); used != "" {
		gpumath.Logger().Debug("gpumath: config loaded", "file", used)
	}
	return nil
}
