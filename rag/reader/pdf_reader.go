package reader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/aqua777/go-callrag/schema"
)

// ErrNoText is returned when a PDF yields no extractable text.
var ErrNoText = errors.New("no text content found in PDF")

// PDFReader extracts text from PDF files such as exported call quality reports.
type PDFReader struct {
	InputFiles []string
	// SplitByPage creates one document per page instead of one per file.
	SplitByPage bool
	// ExtraMetadata is added to every document.
	ExtraMetadata map[string]interface{}
}

var _ ReaderWithContext = (*PDFReader)(nil)

// PDFReaderOption configures PDFReader.
type PDFReaderOption func(*PDFReader)

// WithPDFSplitByPage enables splitting by page.
func WithPDFSplitByPage(split bool) PDFReaderOption {
	return func(r *PDFReader) {
		r.SplitByPage = split
	}
}

// WithPDFExtraMetadata sets extra metadata.
func WithPDFExtraMetadata(metadata map[string]interface{}) PDFReaderOption {
	return func(r *PDFReader) {
		r.ExtraMetadata = metadata
	}
}

// NewPDFReader creates a new PDFReader for specific files.
func NewPDFReader(inputFiles []string, opts ...PDFReaderOption) *PDFReader {
	r := &PDFReader{InputFiles: inputFiles}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadData loads PDF files and returns documents.
func (r *PDFReader) LoadData() ([]schema.Node, error) {
	return r.LoadDataWithContext(context.Background())
}

func (r *PDFReader) LoadDataWithContext(ctx context.Context) ([]schema.Node, error) {
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
			return nil, NewReaderError(file, "failed to load PDF file", err)
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

func (r *PDFReader) loadFile(filePath string) ([]schema.Node, error) {
	f, pdfReader, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	numPages := pdfReader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	base := map[string]interface{}{
		"source":      filePath,
		"file_name":   filepath.Base(filePath),
		"file_type":   "pdf",
		"total_pages": numPages,
	}
	copyMetadata(base, r.ExtraMetadata)
	stem := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))

	var (
		docs  []schema.Node
		whole strings.Builder
	)
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Unreadable pages are skipped; the rest of the file is still useful.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if r.SplitByPage {
			meta := make(map[string]interface{}, len(base)+1)
			copyMetadata(meta, base)
			meta["page_number"] = pageNum
			docs = append(docs, *schema.NewDocument(stem+"-page-"+strconv.Itoa(pageNum), text, meta))
			continue
		}
		if whole.Len() > 0 {
			whole.WriteString("\n\n")
		}
		whole.WriteString(text)
	}

	if !r.SplitByPage && whole.Len() > 0 {
		docs = append(docs, *schema.NewDocument(stem, whole.String(), base))
	}
	if len(docs) == 0 {
		return nil, ErrNoText
	}
	return docs, nil
}
