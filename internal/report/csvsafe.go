package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/guarzo/pkmcatalog/internal/aggregate"
	"github.com/guarzo/pkmcatalog/internal/model"
)

// EscapeCSVCell protects against CSV formula injection attacks
// by escaping cells that start with dangerous characters
func EscapeCSVCell(value string) string {
	if value == "" {
		return value
	}

	// Check if the first character is a formula indicator
	firstChar := value[0]
	if firstChar == '=' || firstChar == '+' || firstChar == '-' || firstChar == '@' {
		// Prefix with single quote to escape formula
		return "'" + value
	}

	// Also check for other potential formula patterns
	// Some spreadsheets may interpret these as formulas
	if strings.HasPrefix(value, "|") || strings.HasPrefix(value, "%") {
		return "'" + value
	}

	// Check for tab character at the start (can be used for injection)
	if strings.HasPrefix(value, "\t") {
		return "'" + value
	}

	// Check for carriage return or newline at start
	if strings.HasPrefix(value, "\r") || strings.HasPrefix(value, "\n") {
		return "'" + value
	}

	return value
}

// EscapeCSVRow escapes all cells in a row
func EscapeCSVRow(row []string) []string {
	escaped := make([]string, len(row))
	for i, cell := range row {
		escaped[i] = EscapeCSVCell(cell)
	}
	return escaped
}

// EscapeCSVRows escapes all cells in multiple rows
func EscapeCSVRows(rows [][]string) [][]string {
	escaped := make([][]string, len(rows))
	for i, row := range rows {
		escaped[i] = EscapeCSVRow(row)
	}
	return escaped
}

// SafeCSVHeaders ensures header row is consistent and safe
func SafeCSVHeaders(headers []string) []string {
	return EscapeCSVRow(headers)
}

// WritePricesCSV dumps the aggregated median table to a debug CSV file,
// one row per card/bucket pair. Off by default (config.Debug); card names
// come from external catalog sources (API payloads and scraped HTML), so
// every cell is run through EscapeCSVRow before being written.
func WritePricesCSV(path string, cards []model.Card, byCard aggregate.ByCard) error {
	names := make(map[string]string, len(cards))
	for _, c := range cards {
		names[c.ID] = c.Name
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(SafeCSVHeaders([]string{"cardId", "cardName", "bucket", "medianEur", "n"})); err != nil {
		return fmt.Errorf("report: write header: %w", err)
	}

	cardIDs := make([]string, 0, len(byCard))
	for id := range byCard {
		cardIDs = append(cardIDs, id)
	}
	sort.Strings(cardIDs)

	for _, id := range cardIDs {
		buckets := byCard[id]
		bucketKeys := make([]string, 0, len(buckets))
		for b := range buckets {
			bucketKeys = append(bucketKeys, string(b))
		}
		sort.Strings(bucketKeys)

		for _, b := range bucketKeys {
			agg := buckets[model.Bucket(b)]
			median := ""
			if agg.MedianEur != nil {
				median = fmt.Sprintf("%.2f", *agg.MedianEur)
			}
			row := EscapeCSVRow([]string{id, names[id], b, median, fmt.Sprintf("%d", agg.N)})
			if err := w.Write(row); err != nil {
				return fmt.Errorf("report: write row: %w", err)
			}
		}
	}

	w.Flush()
	return w.Error()
}
