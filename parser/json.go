package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONParser handles arbitrary JSON documents (file_type "json"). It re-indents
// the document into readable text rather than interpreting a schema —
// the same "just get clean text in front of the chunker" approach as
// TextParser.
type JSONParser struct{}

func (p *JSONParser) SupportedFormats() []string { return []string{"json"} }

func (p *JSONParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading JSON file: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	return &ParseResult{
		Sections: []Section{
			{
				Heading: filepath.Base(path),
				Content: buf.String(),
				Type:    "paragraph",
				Level:   1,
			},
		},
		Method: "native",
	}, nil
}
