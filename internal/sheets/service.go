// Package sheets appends bulk synchronization reports to a Google Sheet.
package sheets

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"invoicesync/internal/logger"
	"invoicesync/internal/ordersync"
	"invoicesync/pkg/models"
)

// Service handles Google Sheets operations
type Service struct {
	sheetsService *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

// ReportRow is one synchronized order in the report.
type ReportRow struct {
	OrderID     int64
	Number      string
	Total       float64
	Currency    string
	Status      string
	CustomerRef string
	DocumentRef string
	PaymentRef  string
	EmailSent   bool
	Message     string // Skip reason, warnings or error
	ProcessedAt string
}

var headers = []interface{}{
	"Order", "Number", "Total", "Currency", "Status", "Customer", "Invoice",
	"Payment", "Email sent", "Message", "Processed at",
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// NewSheetsService creates a new Google Sheets service
func NewSheetsService(ctx context.Context, sheetURL string) (*Service, error) {
	const op = "NewSheetsService"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}

	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	var creds []byte
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		creds, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	} else if credsJSON := os.Getenv("GOOGLE_CREDENTIALS"); credsJSON != "" {
		creds = []byte(credsJSON)
	} else {
		return nil, fmt.Errorf("%s: neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set", op)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	sheetsService, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return &Service{
		sheetsService: sheetsService,
		spreadsheetID: spreadsheetID,
		log:           log,
	}, nil
}

// extractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format")
	}
	return matches[1], nil
}

// NewReportRows pairs orders with their outcomes, which SyncAll returns in
// input order.
func NewReportRows(orders []*models.Order, outcomes []ordersync.Outcome, processedAt time.Time) []ReportRow {
	byID := make(map[int64]*models.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}

	stamp := processedAt.Format("2006-01-02 15:04:05")
	rows := make([]ReportRow, 0, len(outcomes))
	for _, outcome := range outcomes {
		row := ReportRow{
			OrderID:     outcome.OrderID,
			Status:      outcome.Status(),
			CustomerRef: outcome.CustomerRef,
			DocumentRef: outcome.DocumentRef,
			PaymentRef:  outcome.PaymentRef,
			EmailSent:   outcome.EmailSent,
			ProcessedAt: stamp,
		}
		if order, ok := byID[outcome.OrderID]; ok {
			row.Number = order.Number
			row.Total = order.Total
			row.Currency = normalizeCurrency(order.Currency)
		}

		switch {
		case outcome.Err != nil:
			row.Message = "Error: " + outcome.Err.Error()
		case outcome.Skipped:
			row.Message = outcome.SkipReason
		default:
			row.Message = strings.Join(outcome.Warnings, "; ")
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteSyncReport appends rows to the named sheet, creating it with a header
// row when missing.
func (s *Service) WriteSyncReport(ctx context.Context, rows []ReportRow, sheetName string) error {
	const op = "WriteSyncReport"

	s.log.Info().
		Str("sheet", sheetName).
		Int("rows", len(rows)).
		Msg("Writing sync report to Google Sheet")

	if err := s.ensureSheetWithHeaders(ctx, sheetName); err != nil {
		return fmt.Errorf("%s: failed to ensure sheet exists: %w", op, err)
	}

	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		values = append(values, row.values())
	}

	_, err := s.sheetsService.Spreadsheets.Values.Append(
		s.spreadsheetID,
		fmt.Sprintf("%s!A:%s", sheetName, lastColumn()),
		&sheets.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to append values to sheet: %w", op, err)
	}

	s.log.Info().
		Int("rows_written", len(values)).
		Msg("Successfully wrote sync report to Google Sheet")

	return nil
}

func (r ReportRow) values() []interface{} {
	email := "no"
	if r.EmailSent {
		email = "yes"
	}
	return []interface{}{
		strconv.FormatInt(r.OrderID, 10),
		r.Number,
		r.Total,
		r.Currency,
		r.Status,
		r.CustomerRef,
		r.DocumentRef,
		r.PaymentRef,
		email,
		r.Message,
		r.ProcessedAt,
	}
}

// lastColumn is the letter of the last report column.
func lastColumn() string {
	return string(rune('A' + len(headers) - 1))
}

// ensureSheetWithHeaders ensures the sheet exists and has proper headers
func (s *Service) ensureSheetWithHeaders(ctx context.Context, sheetName string) error {
	const op = "ensureSheetWithHeaders"

	spreadsheet, err := s.sheetsService.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	var sheetExists bool
	var sheetID int64
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == sheetName {
			sheetExists = true
			sheetID = sheet.Properties.SheetId
			break
		}
	}

	if !sheetExists {
		s.log.Info().Str("sheet", sheetName).Msg("Creating new sheet")

		resp, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: sheetName}}},
			},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to create sheet: %w", op, err)
		}
		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}

	headerRange := fmt.Sprintf("%s!A1:%s1", sheetName, lastColumn())
	resp, err := s.sheetsService.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get headers: %w", op, err)
	}

	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		s.log.Info().Str("sheet", sheetName).Msg("Adding headers to sheet")

		_, err = s.sheetsService.Spreadsheets.Values.Update(
			s.spreadsheetID,
			headerRange,
			&sheets.ValueRange{Values: [][]interface{}{headers}},
		).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to add headers: %w", op, err)
		}

		if err := s.formatHeaders(ctx, sheetID); err != nil {
			s.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
		}
	}

	return nil
}

// formatHeaders makes the header row bold and resizes the columns
func (s *Service) formatHeaders(ctx context.Context, sheetID int64) error {
	const op = "formatHeaders"

	columns := int64(len(headers))
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   columns,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat:      &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   columns,
				},
			},
		},
	}

	_, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to format headers: %w", op, err)
	}

	return nil
}

// normalizeCurrency upper-cases ISO codes; shop orders default to EUR.
func normalizeCurrency(currency string) string {
	normalized := strings.ToUpper(strings.TrimSpace(currency))
	switch normalized {
	case "", "€", "EURO", "EUROS":
		return "EUR"
	case "$", "US$":
		return "USD"
	case "£":
		return "GBP"
	}
	return normalized
}
