/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lewtec/maskbatch/maskbatch"
)

// rootCmd starts the annotation server when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "maskbatch [config.yaml]",
	Short: "Batch image mask annotation backend",
	Long: strings.TrimSpace(`
Serve the mask annotation API: register images, run annotation sessions
with undo/redo mask editing, track review status and export COCO-style
instance segmentation datasets.
    `),
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Listen = addr
		}

		app, err := maskbatch.NewApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close(cmd.Context())

		app.Log.Info().Str("addr", cfg.Listen).Msg("starting server")
		return http.ListenAndServe(cfg.Listen, app.Handler())
	},
}

// loadConfig resolves the configuration from the positional argument, the
// --config flag or built-in defaults, then applies the --database override.
func loadConfig(cmd *cobra.Command, args []string) (*maskbatch.Config, error) {
	configFile := ""
	if len(args) == 1 {
		configFile = args[0]
	} else if flagFile, _ := cmd.Flags().GetString("config"); flagFile != "" {
		configFile = flagFile
	}

	var cfg *maskbatch.Config
	var err error
	if configFile != "" {
		cfg, err = maskbatch.LoadConfig(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = maskbatch.DefaultConfig()
	}

	if database, _ := cmd.Flags().GetString("database"); database != "" {
		cfg.Database = database
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file path")
	rootCmd.PersistentFlags().StringP("database", "d", "", "Database file path (overrides config)")
	rootCmd.Flags().StringP("addr", "a", "", "Address to bind the webserver (overrides config)")
}
