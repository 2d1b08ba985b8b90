package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/martinemde/unifai/unifiedllm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "unifai",
	Short:         "Chat with LLMs through a prioritized fallback chain",
	Long:          "unifai sends chat requests to the first available provider in a priority list, falling back to the next one when a provider fails.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// clientFactory builds the client used by every command. Tests replace it.
var clientFactory = unifiedllm.New

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().StringP("priority", "p", "", "Comma-separated model specifiers, most preferred first")
	rootCmd.PersistentFlags().String("local-base-url", "", "Base URL of the local OpenAI-compatible server")
	rootCmd.PersistentFlags().Duration("timeout", 2*time.Minute, "Timeout for each command")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("priority", rootCmd.PersistentFlags().Lookup("priority"))
	_ = viper.BindPFlag("local_base_url", rootCmd.PersistentFlags().Lookup("local-base-url"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	viper.SetEnvPrefix("UNIFAI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// newLogger returns a development logger when verbose, otherwise a
// production logger that only reports warnings and errors.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// loadConfig reads the config file when one is named, otherwise the
// environment, then applies flag overrides.
func loadConfig() (unifiedllm.Config, error) {
	var cfg unifiedllm.Config
	if path := viper.GetString("config"); path != "" {
		loaded, err := unifiedllm.LoadConfigFile(path, os.LookupEnv)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	} else {
		cfg = unifiedllm.ConfigFromEnv(os.LookupEnv)
	}

	if p := unifiedllm.ParsePriority(viper.GetString("priority")); len(p) > 0 {
		cfg.Priority = p
	}
	if u := viper.GetString("local_base_url"); u != "" {
		cfg.LocalBaseURL = u
	}
	return cfg, nil
}

// openClient builds the client for one command run. The returned cleanup
// closes the client and flushes the logger.
func openClient(ctx context.Context) (*unifiedllm.Client, func(), error) {
	logger, err := newLogger(viper.GetBool("verbose"))
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	cfg.Logger = logger

	client, err := clientFactory(ctx, cfg)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing client", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return client, cleanup, nil
}

// commandContext bounds a command by the --timeout flag.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout := viper.GetDuration("timeout"); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// servedBy reports which provider served the last call when verbose.
func servedBy(cmd *cobra.Command, resp *unifiedllm.Response) {
	if viper.GetBool("verbose") && resp != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "[served by %s/%s, %d tokens]\n", resp.Provider, resp.Model, resp.Usage.TotalTokens)
	}
}
