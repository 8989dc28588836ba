/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lewtec/maskbatch/internal/repository"
	"github.com/lewtec/maskbatch/maskbatch"
)

// normalizeCmd migrates databases written before the current status and
// layer model.
var normalizeCmd = &cobra.Command{
	Use:   "normalize-legacy",
	Short: "Normalize legacy statuses and split multi-mask layers",
	Long: `Rewrite legacy data shapes in place:
- image statuses in_progress_auto/in_progress_manual become in_progress
- image status completed becomes approved
- legacy layer type values map onto the current layer statuses
- rows storing several masks are split into one layer per mask

Safe to run repeatedly; an already-normalized database is left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			return err
		}

		app, err := maskbatch.NewApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close(cmd.Context())

		report, err := repository.NormalizeLegacy(cmd.Context(), app.DB)
		if err != nil {
			return err
		}
		fmt.Printf("normalized %d image statuses, %d layer statuses, split %d layers\n",
			report.ImagesNormalized, report.LayersNormalized, report.LayersSplit)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}
