package reader

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aqua777/go-callrag/schema"
)

// MetaRowIndex is the zero-based data row a CSV document came from.
const MetaRowIndex = "row_index"

// CSVReader reads CSV files and turns each data row into a document.
type CSVReader struct {
	// InputFiles is a list of CSV file paths to read
	InputFiles []string
	// Delimiter is the field delimiter (default: comma, tab for .tsv)
	Delimiter rune
	// HasHeader indicates if the first row is a header row
	HasHeader bool
	// TextColumns are column names or indices to use as document text.
	// If empty, all columns are concatenated as text.
	TextColumns []string
	// MetadataColumns are column names or indices to extract as metadata.
	// If empty and TextColumns is set, the remaining columns are used.
	MetadataColumns []string
	// ListLiteral decodes each text cell as a Python list of strings and
	// joins the items with spaces. A cell that does not decode yields
	// empty text.
	ListLiteral bool
	// SkipEmpty drops rows whose text is empty.
	SkipEmpty bool
}

var _ ReaderWithContext = (*CSVReader)(nil)

// NewCSVReader creates a new CSVReader for specific files.
func NewCSVReader(inputFiles ...string) *CSVReader {
	return &CSVReader{
		InputFiles: inputFiles,
		Delimiter:  ',',
		HasHeader:  true,
	}
}

// WithDelimiter sets the field delimiter.
func (r *CSVReader) WithDelimiter(delimiter rune) *CSVReader {
	r.Delimiter = delimiter
	return r
}

// WithHeader sets whether the first row is a header.
func (r *CSVReader) WithHeader(hasHeader bool) *CSVReader {
	r.HasHeader = hasHeader
	return r
}

// WithTextColumns sets which columns to use as document text.
func (r *CSVReader) WithTextColumns(columns ...string) *CSVReader {
	r.TextColumns = columns
	return r
}

// WithMetadataColumns sets which columns to extract as metadata.
func (r *CSVReader) WithMetadataColumns(columns ...string) *CSVReader {
	r.MetadataColumns = columns
	return r
}

// WithListLiteral enables Python list literal decoding of text cells.
func (r *CSVReader) WithListLiteral(enabled bool) *CSVReader {
	r.ListLiteral = enabled
	return r
}

// WithSkipEmpty drops rows that produce no text.
func (r *CSVReader) WithSkipEmpty(skip bool) *CSVReader {
	r.SkipEmpty = skip
	return r
}

// LoadData loads CSV files and returns documents.
func (r *CSVReader) LoadData() ([]schema.Node, error) {
	return r.LoadDataWithContext(context.Background())
}

func (r *CSVReader) LoadDataWithContext(ctx context.Context) ([]schema.Node, error) {
	if len(r.InputFiles) == 0 {
		return nil, fmt.Errorf("no input files specified")
	}
	var docs []schema.Node
	for _, file := range r.InputFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileDocs, err := r.loadFile(file)
		if err != nil {
			return nil, NewReaderError(file, "failed to load CSV file", err)
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

func (r *CSVReader) loadFile(filePath string) ([]schema.Node, error) {
	headers, rows, err := readCSV(filePath, r.Delimiter, r.HasHeader)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	textIdx, err := columnIndices(headers, r.TextColumns)
	if err != nil {
		return nil, err
	}
	metaIdx, err := columnIndices(headers, r.MetadataColumns)
	if err != nil {
		return nil, err
	}
	if len(textIdx) == 0 {
		for i := range headers {
			textIdx = append(textIdx, i)
		}
	}
	if len(metaIdx) == 0 && len(r.TextColumns) > 0 {
		inText := make(map[int]bool, len(textIdx))
		for _, i := range textIdx {
			inText[i] = true
		}
		for i := range headers {
			if !inText[i] {
				metaIdx = append(metaIdx, i)
			}
		}
	}

	base := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	docs := make([]schema.Node, 0, len(rows))
	for rowIdx, row := range rows {
		text := r.rowText(headers, row, textIdx)
		if r.SkipEmpty && text == "" {
			continue
		}
		meta := map[string]interface{}{
			"source":     filePath,
			"file_name":  filepath.Base(filePath),
			MetaRowIndex: rowIdx,
		}
		for _, i := range metaIdx {
			if i < len(row) {
				if v := strings.TrimSpace(row[i]); v != "" {
					meta[headers[i]] = v
				}
			}
		}
		docs = append(docs, *schema.NewDocument(base+"-row-"+strconv.Itoa(rowIdx), text, meta))
	}
	return docs, nil
}

func (r *CSVReader) rowText(headers, row []string, textIdx []int) string {
	parts := make([]string, 0, len(textIdx))
	for _, i := range textIdx {
		if i >= len(row) {
			continue
		}
		val := strings.TrimSpace(row[i])
		if r.ListLiteral {
			items, err := ParseListLiteral(val)
			if err != nil {
				val = ""
			} else {
				val = strings.Join(items, " ")
			}
		}
		if val == "" {
			continue
		}
		if len(textIdx) > 1 {
			val = headers[i] + ": " + val
		}
		parts = append(parts, val)
	}
	return strings.Join(parts, "\n")
}

// readCSV returns the header row (synthesized as col_N when absent) and the data rows.
func readCSV(filePath string, delimiter rune, hasHeader bool) ([]string, [][]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if delimiter == 0 {
		delimiter = ','
	}
	if delimiter == ',' && strings.EqualFold(filepath.Ext(filePath), ".tsv") {
		delimiter = '\t'
	}

	cr := csv.NewReader(f)
	cr.Comma = delimiter
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	if hasHeader {
		headers := make([]string, len(records[0]))
		for i, h := range records[0] {
			headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		}
		return headers, records[1:], nil
	}
	headers := make([]string, len(records[0]))
	for i := range headers {
		headers[i] = "col_" + strconv.Itoa(i)
	}
	return headers, records, nil
}

// columnIndices resolves names (case-insensitive) or numeric indices.
// An unknown column is an error.
func columnIndices(headers, columns []string) ([]int, error) {
	if len(columns) == 0 {
		return nil, nil
	}
	byName := make(map[string]int, len(headers))
	for i, h := range headers {
		byName[strings.ToLower(h)] = i
	}
	out := make([]int, 0, len(columns))
	for _, col := range columns {
		col = strings.TrimSpace(col)
		if i, ok := byName[strings.ToLower(col)]; ok {
			out = append(out, i)
			continue
		}
		if i, err := strconv.Atoi(col); err == nil && i >= 0 && i < len(headers) {
			out = append(out, i)
			continue
		}
		return nil, fmt.Errorf("column %q not found in %v", col, headers)
	}
	return out, nil
}
