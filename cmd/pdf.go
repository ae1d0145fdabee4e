package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"invoicesync/internal/logger"
)

var pdfCmd = &cobra.Command{
	Use:   "pdf [document-id]",
	Short: "Download the PDF of an INFast document",
	Example: `  # Save to invoice.pdf
  invoicesync pdf D-2025-0001 -o invoice.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runPDF,
}

func init() {
	rootCmd.AddCommand(pdfCmd)

	pdfCmd.Flags().StringP("output", "o", "", "Output file path (default: <document-id>.pdf)")
	pdfCmd.Flags().Int("timeout", 60, "Request timeout in seconds")
}

func runPDF(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("pdf")
	documentID := args[0]

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath == "" {
		outputPath = documentID + ".pdf"
	}
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	api, err := createAPI(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContext(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	pdf, err := api.Documents.ExportPDF(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to export document %s: %w", documentID, err)
	}
	if err := os.WriteFile(outputPath, pdf, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	log.Info().
		Str("document_id", documentID).
		Str("output", outputPath).
		Int("size", len(pdf)).
		Msg("Document PDF saved")
	fmt.Printf("Saved %s (%d bytes)\n", outputPath, len(pdf))
	return nil
}
