package reader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aqua777/go-callrag/schema"
)

// DefaultExtensions are the file types SimpleDirectoryReader picks up.
var DefaultExtensions = []string{".jsonl", ".csv", ".pdf", ".txt", ".md"}

// SimpleDirectoryReader walks a directory and hands each file to the reader
// for its extension: CDR JSONL, CSV rows, PDF text, or plain text.
type SimpleDirectoryReader struct {
	inputDir   string
	extensions []string
	// CSV configures how .csv files are read. Its InputFiles are ignored.
	CSV *CSVReader
	// CDR configures how .jsonl files are read. Its InputFiles are ignored.
	CDR *CDRReader
}

var _ ReaderWithContext = (*SimpleDirectoryReader)(nil)

// NewSimpleDirectoryReader creates a new SimpleDirectoryReader.
func NewSimpleDirectoryReader(inputDir string, extensions ...string) *SimpleDirectoryReader {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &SimpleDirectoryReader{
		inputDir:   inputDir,
		extensions: extensions,
		CSV:        NewCSVReader(),
		CDR:        NewCDRReader(),
	}
}

func (r *SimpleDirectoryReader) LoadData() ([]schema.Node, error) {
	return r.LoadDataWithContext(context.Background())
}

// LoadDataWithContext reads matching files in lexical path order.
func (r *SimpleDirectoryReader) LoadDataWithContext(ctx context.Context) ([]schema.Node, error) {
	var files []string
	err := filepath.WalkDir(r.inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != r.inputDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if r.matches(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", r.inputDir, err)
	}
	sort.Strings(files)

	var docs []schema.Node
	for _, path := range files {
		fileDocs, err := r.loadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

func (r *SimpleDirectoryReader) matches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range r.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (r *SimpleDirectoryReader) loadFile(ctx context.Context, path string) ([]schema.Node, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		cr := *r.CDR
		cr.InputFiles = []string{path}
		return cr.LoadDataWithContext(ctx)
	case ".csv", ".tsv":
		cr := *r.CSV
		cr.InputFiles = []string{path}
		return cr.LoadDataWithContext(ctx)
	case ".pdf":
		return NewPDFReader([]string{path}).LoadDataWithContext(ctx)
	default:
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, NewReaderError(path, "failed to read file", err)
		}
		doc := schema.NewDocument(path, string(content), map[string]interface{}{
			"source":    path,
			"file_name": filepath.Base(path),
			"ext":       strings.ToLower(filepath.Ext(path)),
		})
		return []schema.Node{*doc}, nil
	}
}
