/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lewtec/maskbatch/internal/domain"
	"github.com/lewtec/maskbatch/maskbatch"
)

// exportCmd builds an export document straight from the database, without
// the server running.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export annotations as a COCO-style document",
	Long: `Export the stored mask layers as a COCO-style instance segmentation
document on stdout or into a file.

Examples:
  maskbatch export -d annotations.db -o dataset.json
  maskbatch export -d annotations.db --image-status approved --layer-status approved`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			return err
		}

		if raw, _ := cmd.Flags().GetStringSlice("image-status"); len(raw) > 0 {
			cfg.Export.ImageStatuses = raw
		}
		if raw, _ := cmd.Flags().GetStringSlice("layer-status"); len(raw) > 0 {
			cfg.Export.LayerStatuses = raw
		}
		for _, s := range cfg.Export.ImageStatuses {
			if !domain.ImageStatus(s).Valid() {
				return fmt.Errorf("unknown image status %q", s)
			}
		}

		app, err := maskbatch.NewApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close(cmd.Context())

		doc, err := app.Export.PrepareExport(cmd.Context(),
			cfg.ExportImageStatuses(), cfg.ExportLayerStatuses())
		if err != nil {
			return err
		}

		out := os.Stdout
		if outFile, _ := cmd.Flags().GetString("output"); outFile != "" {
			f, err := os.Create(outFile)
			if err != nil {
				return fmt.Errorf("while creating output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("while writing export document: %w", err)
		}
		fmt.Fprintf(os.Stderr, "exported %d images, %d annotations (%d corrupt, %d unlabeled skipped)\n",
			doc.Summary.Images, doc.Summary.Annotations,
			doc.Summary.SkippedCorrupt, doc.Summary.SkippedUnlabeled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	exportCmd.Flags().StringSlice("image-status", nil, "Image statuses to export (default: all)")
	exportCmd.Flags().StringSlice("layer-status", nil, "Layer statuses to export (default: all)")
}
