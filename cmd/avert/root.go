package avert

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundprediction/avert/pkg/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "avert",
		Short: "A-VERT: score model responses against candidate groups",
		Long: `avert classifies free-form model responses by comparing them with
groups of candidate answers (correct, wrong, refusal, formulation mistake)
through an embedding or reranking backend.

Backends are configured with AVERT_* environment variables, a config file or
the flags below.`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.avert.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("endpoint", "", "backend base URL")
	flags.String("endpoint-type", "", "backend type (tei, vllm, openai, local)")
	flags.String("method", "", "scoring method (embedding, rerank)")
	flags.String("model", "", "model name sent to the backend")
	flags.String("prompt-template", "", "predefined template pair")
	flags.String("grouping", "", "grouping method (max, mean, mean_top_k_<k>)")
	flags.Int("batch-size", 0, "maximum candidates per backend call")
	flags.Int("max-len", 0, "keep only the last N words of a response (-1 disables)")
	flags.Bool("no-enhance", false, "disable candidate enhancement")
	flags.Bool("cache", false, "cache embeddings on disk")
}

// initConfig reads in config file if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".avert")
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the configuration and applies the global flags, which win
// over the environment and the config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	setString := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	setInt := func(name string, dst *int) {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	setString("log-level", &cfg.Log.Level)
	setString("endpoint", &cfg.Model.Endpoint)
	setString("endpoint-type", &cfg.Model.EndpointType)
	setString("method", &cfg.Model.Method)
	setString("model", &cfg.Model.Name)
	setString("prompt-template", &cfg.Templates.Prompt)
	setString("grouping", &cfg.Scoring.Grouping)
	setInt("batch-size", &cfg.Scoring.BatchSize)
	setInt("max-len", &cfg.Scoring.MaxLen)
	if flags.Changed("no-enhance") {
		noEnhance, _ := flags.GetBool("no-enhance")
		cfg.Scoring.Enhance = !noEnhance
	}
	if flags.Changed("cache") {
		cfg.Cache.Enabled, _ = flags.GetBool("cache")
	}
	return cfg, nil
}
