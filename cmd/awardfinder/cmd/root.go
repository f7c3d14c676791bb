package cmd

import (
	"fmt"
	"os"

	"awardfinder-backend/lib/configutil"
	"awardfinder-backend/lib/telemetry"

	"github.com/spf13/cobra"
)

type SourceConfig struct {
	// overrides the production host, mostly useful against mirrors
	BaseUrl string `json:"base_url"`
}

type Config struct {
	Mellon    SourceConfig `json:"mellon"`
	Nih       SourceConfig `json:"nih"`
	Nsf       SourceConfig `json:"nsf"`
	Sloan     SourceConfig `json:"sloan"`
	Templeton SourceConfig `json:"templeton"`

	// politeness delay between page fetches, zero keeps each source's
	// default
	PageDelaySeconds int `json:"page_delay_seconds"`
	// when set, every HTTP exchange is dumped into this directory
	DumpHttpDir string `json:"dump_http_dir"`
}

var config Config
var debug bool

var rootCmd = &cobra.Command{
	Use:   "awardfinder",
	Short: "awardfinder retrieves research funding awards from public grant databases.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(debug)

		// a missing telemetry.json5 just means spans go nowhere
		_, err := telemetry.SetupFromEnv(cmd.Context(), "awardfinder")
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to setup telemetry: %w", err)
		}
		if err == nil {
			telemetry.InstrumentPerfStats(cmd.Context())
		}

		config, err = configutil.ReadConfig[Config]("awardfinder.json5")
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
