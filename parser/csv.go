package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CSVParser handles comma-separated value files. No library in the
// corpus parses CSV specifically (excelize is XLSX/XLS-only), so this uses
// the standard library's encoding/csv, following XLSXParser's row-to-table
// rendering for the resulting section.
type CSVParser struct{}

func (p *CSVParser) SupportedFormats() []string { return []string{"csv"} }

func (p *CSVParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data found in CSV")
	}

	var content strings.Builder
	for _, row := range rows {
		content.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}

	return &ParseResult{
		Sections: []Section{
			{
				Heading: filepath.Base(path),
				Content: content.String(),
				Type:    "table",
				Level:   1,
				Metadata: map[string]string{
					"row_count": fmt.Sprintf("%d", len(rows)),
				},
			},
		},
		Method: "native",
	}, nil
}
