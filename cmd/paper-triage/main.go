// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paper-triage CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-triage/internal/secrets"
	"github.com/pdiddy/paper-triage/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from the secrets directory at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the paper-triage CLI.
var rootCmd = &cobra.Command{
	Use:   "paper-triage",
	Short: "Daily research paper triage",
	Long: `paper-triage fetches recent papers for your fields, scores them with a
language model, writes deep-read reports for the best few and keeps an
archive of everything it has seen.

Run "paper-triage serve" for the HTTP API or "paper-triage run" for a
single pipeline run from the shell.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := secrets.LoadEnv(envFile); err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("secrets")
		s, err := secrets.Load(dir)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paper-triage.yaml or ~/.config/paper-triage/paper-triage.yaml)")
	rootCmd.PersistentFlags().String("secrets", ".secrets/", "directory of secret key files")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded into the environment")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paper-triage")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paper-triage"))
		}
	}

	if err := setDefaults(types.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: registering config defaults: %v\n", err)
	}

	viper.SetEnvPrefix("PAPER_TRIAGE")
	viper.SetEnvKeyReplacer(envReplacer())
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// envReplacer maps nested keys such as archive.path to ARCHIVE_PATH.
func envReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

// credentialKeys have no default value but must still be known to viper so
// that environment variables reach them.
var credentialKeys = []string{
	"llm.api_key",
	"llm.base_url",
	"embedding.api_key",
	"embedding.base_url",
	"fetch.openalex_email",
	"fetch.papers_file",
	"notify.webhook_url",
}

// setDefaults registers every key of cfg with viper so that AutomaticEnv
// can override nested values.
func setDefaults(cfg types.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	flatten("", tree)
	for _, k := range credentialKeys {
		if !viper.IsSet(k) {
			viper.SetDefault(k, "")
		}
	}
	return nil
}

func flatten(prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok && len(sub) > 0 {
			flatten(key, sub)
			continue
		}
		viper.SetDefault(key, v)
	}
}

// loadConfig returns the effective configuration: defaults, then the config
// file and environment, then secrets for credentials still empty. Defaults
// reach the struct through viper so that lists from the config file replace
// the default lists instead of overlaying them.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	secrets.Apply(&cfg, loadedSecrets)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
