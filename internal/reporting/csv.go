package reporting

import (
	"fmt"

	"github.com/gocarina/gocsv"
)

// RenderCSV renders ranking rows as CSV with a header line.
func RenderCSV(rows []RankingRow) (string, error) {
	if rows == nil {
		rows = []RankingRow{}
	}
	out, err := gocsv.MarshalString(&rows)
	if err != nil {
		return "", fmt.Errorf("encode ranking csv: %w", err)
	}
	return out, nil
}
