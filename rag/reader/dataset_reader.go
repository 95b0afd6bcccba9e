package reader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/aqua777/go-callrag/schema"
)

// QASample is one row of a question answering dataset.
type QASample struct {
	ID       string `json:"id"`
	Context  string `json:"context"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// DatasetReader reads RAG question answering datasets from CSV, JSONL or
// XLSX files. Column names are matched case-insensitively.
type DatasetReader struct {
	InputFiles     []string
	ContextColumn  string
	QuestionColumn string
	AnswerColumn   string
	// Sheet selects the XLSX worksheet; empty means the first sheet.
	Sheet string
}

var _ ReaderWithContext = (*DatasetReader)(nil)

// NewDatasetReader uses the context, question and answer columns.
func NewDatasetReader(inputFiles ...string) *DatasetReader {
	return &DatasetReader{
		InputFiles:     inputFiles,
		ContextColumn:  "context",
		QuestionColumn: "question",
		AnswerColumn:   "answer",
	}
}

// WithColumns overrides the column names. Empty arguments keep the current name.
func (r *DatasetReader) WithColumns(contextCol, questionCol, answerCol string) *DatasetReader {
	if contextCol != "" {
		r.ContextColumn = contextCol
	}
	if questionCol != "" {
		r.QuestionColumn = questionCol
	}
	if answerCol != "" {
		r.AnswerColumn = answerCol
	}
	return r
}

// LoadSamples reads every sample from every input file.
func (r *DatasetReader) LoadSamples(ctx context.Context) ([]QASample, error) {
	if len(r.InputFiles) == 0 {
		return nil, fmt.Errorf("no input files specified")
	}
	var samples []QASample
	for _, file := range r.InputFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			rows []map[string]string
			err  error
		)
		switch strings.ToLower(filepath.Ext(file)) {
		case ".jsonl", ".ndjson":
			rows, err = readJSONLRows(file)
		case ".xlsx", ".xlsm":
			rows, err = readXLSXRows(file, r.Sheet)
		default:
			rows, err = readCSVRows(file)
		}
		if err != nil {
			return nil, NewReaderError(file, "failed to read dataset", err)
		}
		stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		for i, row := range rows {
			s := QASample{
				ID:       row["id"],
				Context:  row[strings.ToLower(r.ContextColumn)],
				Question: row[strings.ToLower(r.QuestionColumn)],
				Answer:   row[strings.ToLower(r.AnswerColumn)],
			}
			if s.Question == "" && s.Context == "" {
				continue
			}
			if s.ID == "" {
				s.ID = stem + "-" + strconv.Itoa(i)
			}
			samples = append(samples, s)
		}
	}
	return samples, nil
}

func (r *DatasetReader) LoadData() ([]schema.Node, error) {
	return r.LoadDataWithContext(context.Background())
}

// LoadDataWithContext returns one document per sample, holding its context.
func (r *DatasetReader) LoadDataWithContext(ctx context.Context) ([]schema.Node, error) {
	samples, err := r.LoadSamples(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]schema.Node, 0, len(samples))
	for _, s := range samples {
		if s.Context == "" {
			continue
		}
		docs = append(docs, *schema.NewDocument(s.ID, s.Context, map[string]interface{}{
			"question": s.Question,
			"answer":   s.Answer,
		}))
	}
	return docs, nil
}

func readCSVRows(path string) ([]map[string]string, error) {
	headers, records, err := readCSV(path, ',', true)
	if err != nil {
		return nil, err
	}
	return zipRows(headers, records), nil
}

func readXLSXRows(path, sheet string) ([]map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return zipRows(records[0], records[1:]), nil
}

func readJSONLRows(path string) ([]map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make(map[string]string, len(obj))
		for k, v := range obj {
			if v == nil {
				continue
			}
			row[strings.ToLower(k)] = strings.TrimSpace(schema.FormatValue(v))
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}

func zipRows(headers []string, records [][]string) []map[string]string {
	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[strings.ToLower(strings.TrimSpace(h))] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows
}
