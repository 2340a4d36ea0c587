// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/proclat/internal/config"
	"firestige.xyz/proclat/internal/log"
)

var (
	// Global flags
	configFile string
	logLevel   string

	// globalConfig is loaded once before any subcommand runs.
	globalConfig *config.GlobalConfig
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "proclat",
	Short: "proclat - 5G core procedure correlation and latency measurement",
	Long: `proclat reads packet traces captured at 5G core network functions, recognizes
the messages that start and end a control-plane procedure, pairs them per
subscriber or session and reports latency statistics.

Procedures:
  - ue_reg       UE registration
  - ue_reg_pdu   UE registration with PDU session establishment
  - ue_dereg     UE deregistration
  - pdu_est      PDU session establishment
  - pdu_rel      PDU session release

Trace formats: tshark JSON (.json), tshark PDML (.pdml), pcap/pcapng,
optionally gzip (.gz) or zstd (.zst) compressed.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log.level (trace/debug/info/warn/error)")

	// Add subcommands
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(signaturesCmd)
}

// setup loads the global configuration and initializes logging.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile, logLevel)
	if err != nil {
		return err
	}
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	globalConfig = cfg
	return nil
}

func loadConfig(path, level string) (*config.GlobalConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Log.Level = level
		if err := cfg.ValidateAndApplyDefaults(); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}
