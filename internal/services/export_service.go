package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"s2s-tracker/internal/models"
)

const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"

	exportSheet = "Conversions"
)

var exportHeaders = []string{
	"id", "transaction_id", "offer_id", "offer_title", "name", "email", "ip_address",
	"country", "city", "region", "timezone", "isp", "device", "os", "browser",
	"screen_resolution", "language", "user_agent", "referrer", "goal", "payout", "status",
	"postback_sent", "created_at",
}

// ExportService writes filtered conversions as CSV or XLSX.
type ExportService struct {
	Analytics *AnalyticsService
}

func NewExportService(analytics *AnalyticsService) *ExportService {
	return &ExportService{Analytics: analytics}
}

// NormalizeExportFormat returns the canonical format name, or an ErrValidation error.
func NormalizeExportFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", ExportFormatCSV:
		return ExportFormatCSV, nil
	case ExportFormatXLSX, "excel":
		return ExportFormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q: %w", format, ErrValidation)
}

// ExportFilename names a download, e.g. analytics_export_2024-01-02_15-04-05.csv.
func ExportFilename(format string, at time.Time) string {
	return "analytics_export_" + at.Format("2006-01-02_15-04-05") + "." + format
}

func ExportContentType(format string) string {
	if format == ExportFormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

func (s *ExportService) Export(ctx context.Context, format string, filter AnalyticsFilter, w io.Writer) error {
	format, err := NormalizeExportFormat(format)
	if err != nil {
		return err
	}

	res := s.Analytics.DetailedAnalytics(ctx, filter)
	if res.Err != nil {
		return res.Err
	}

	if format == ExportFormatXLSX {
		return writeXLSX(w, res.Data)
	}
	return writeCSV(w, res.Data)
}

func exportRow(c models.Conversion) []interface{} {
	var offerId, offerTitle interface{} = "", ""
	if c.OfferId != nil {
		offerId = *c.OfferId
	}
	if c.Offer != nil {
		offerTitle = c.Offer.Title
	}
	return []interface{}{
		c.ID, c.TransactionId, offerId, offerTitle, c.Name, c.Email, c.IPAddress,
		c.Country, c.City, c.Region, c.Timezone, c.ISP, c.Device, c.OS, c.Browser,
		c.ScreenResolution, c.Language, c.UserAgent, c.Referrer, c.Goal, c.Payout, c.Status,
		c.PostbackSent, c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeCSV(w io.Writer, rows []models.Conversion) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(exportHeaders); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(exportHeaders))
	for _, c := range rows {
		for i, v := range exportRow(c) {
			record[i] = csvValue(v)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func csvValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', 2, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(t)
	}
}

func writeXLSX(w io.Writer, rows []models.Conversion) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, header)
		f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}

	for rowIdx, c := range rows {
		for colIdx, v := range exportRow(c) {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(exportSheet, cell, v)
		}
	}

	last, _ := excelize.ColumnNumberToName(len(exportHeaders))
	f.SetColWidth(exportSheet, "A", last, 18)
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
