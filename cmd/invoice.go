package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"invoicesync/internal/config"
	"invoicesync/internal/invoice"
	"invoicesync/internal/logger"
	"invoicesync/pkg/models"
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice [orders.json]",
	Short: "Preview the invoice lines built for orders, without calling INFast",
	Long: `Build the invoice lines of every order in a JSON export and print them
as JSON together with the amount reconciliation of each order.

Refunded quantities are netted into forward lines and reversal lines exactly
as the sync command would send them. Nothing is sent and the store is not
touched.`,
	Example: `  # Preview every order
  invoicesync invoice orders.json

  # One order, written to a file
  invoicesync invoice orders.json --order 1001 -o preview.json`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoice,
}

// InvoiceOutput is the JSON document written by the invoice command.
type InvoiceOutput struct {
	Invoices []InvoicePreview `json:"invoices"`
	Metadata PreviewMetadata  `json:"metadata"`
}

// InvoicePreview is the built invoice of one order.
type InvoicePreview struct {
	OrderID           int64                           `json:"order_id"`
	Number            string                          `json:"number,omitempty"`
	Lines             []invoice.Line                  `json:"lines,omitempty"`
	RemainingDiscount float64                         `json:"remaining_discount,omitempty"`
	Validation        *invoice.AmountValidationResult `json:"validation,omitempty"`
	Error             string                          `json:"error,omitempty"`
}

// PreviewMetadata describes the preview run.
type PreviewMetadata struct {
	FileName    string    `json:"file_name"`
	Orders      int       `json:"orders"`
	Failed      int       `json:"failed"`
	ProcessedAt time.Time `json:"processed_at"`
}

func init() {
	rootCmd.AddCommand(invoiceCmd)

	invoiceCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	invoiceCmd.Flags().Int64Slice("order", nil, "Only preview these order ids")
}

func runInvoice(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")

	outputPath, _ := cmd.Flags().GetString("output")
	only, _ := cmd.Flags().GetInt64Slice("order")

	skipDescriptions := true
	if cfg, err := config.Load(); err == nil {
		skipDescriptions = cfg.SkipDescriptions
	}

	orders, err := readJSONFile[*models.Order](args[0])
	if err != nil {
		return err
	}
	if len(only) > 0 {
		orders = slices.DeleteFunc(orders, func(o *models.Order) bool {
			return !slices.Contains(only, o.ID)
		})
	}

	output := InvoiceOutput{
		Invoices: make([]InvoicePreview, 0, len(orders)),
		Metadata: PreviewMetadata{FileName: args[0], Orders: len(orders), ProcessedAt: time.Now()},
	}
	for _, order := range orders {
		preview := previewOrder(order, invoice.Options{SkipDescriptions: skipDescriptions})
		if preview.Error != "" {
			output.Metadata.Failed++
			log.Warn().Int64("order_id", order.ID).Str("error", preview.Error).Msg("Invoice could not be built")
		}
		output.Invoices = append(output.Invoices, preview)
	}

	return outputInvoiceResults(output, outputPath, log)
}

func previewOrder(order *models.Order, opts invoice.Options) InvoicePreview {
	preview := InvoicePreview{OrderID: order.ID, Number: order.Number}

	built, err := invoice.Build(order, opts)
	if err != nil {
		var buildErr *invoice.BuildError
		if errors.As(err, &buildErr) {
			preview.Error = buildErr.Err.Error()
		} else {
			preview.Error = err.Error()
		}
		return preview
	}

	preview.Lines = built.Lines
	preview.RemainingDiscount = built.RemainingDiscount
	preview.Validation = invoice.NewAmountValidation().Validate(order, built)
	return preview
}

// outputInvoiceResults writes the preview as indented JSON to outputPath or stdout.
func outputInvoiceResults(output InvoiceOutput, outputPath string, log zerolog.Logger) error {
	jsonData, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal invoice preview to JSON")
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	if outputPath == "" {
		if _, err := os.Stdout.Write(jsonData); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		fmt.Println()
		return nil
	}

	if err := os.WriteFile(outputPath, jsonData, 0644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().
		Str("output_file", outputPath).
		Int("bytes", len(jsonData)).
		Msg("Invoice preview written to file")
	return nil
}
