package reader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aqua777/go-callrag/cdr"
	"github.com/aqua777/go-callrag/router"
	"github.com/aqua777/go-callrag/schema"
)

// Metadata keys set on CDR documents.
const (
	MetaRoute     = "route"
	MetaRouteRule = "route_rule"
	MetaKind      = "record_kind"
	MetaLine      = "line"
)

// CDRReader loads call detail records from JSONL. Each line becomes one
// document whose text is the flattened summary of the record.
type CDRReader struct {
	InputFiles []string
	// Router tags each document with the category it would be dispatched to.
	// Nil disables tagging.
	Router *router.Router
	// ExtraMetadata is added to every document.
	ExtraMetadata map[string]interface{}
	// Logger reports records whose id repeats. Nil means slog.Default().
	Logger *slog.Logger
}

var _ ReaderWithContext = (*CDRReader)(nil)

// NewCDRReader creates a reader that tags records with the default router.
func NewCDRReader(inputFiles ...string) *CDRReader {
	return &CDRReader{
		InputFiles: inputFiles,
		Router:     router.NewRouter(),
	}
}

// WithRouter replaces the router used for tagging.
func (r *CDRReader) WithRouter(rt *router.Router) *CDRReader {
	r.Router = rt
	return r
}

// WithExtraMetadata sets metadata added to every document.
func (r *CDRReader) WithExtraMetadata(meta map[string]interface{}) *CDRReader {
	r.ExtraMetadata = meta
	return r
}

func (r *CDRReader) LoadData() ([]schema.Node, error) {
	return r.LoadDataWithContext(context.Background())
}

func (r *CDRReader) LoadDataWithContext(ctx context.Context) ([]schema.Node, error) {
	if len(r.InputFiles) == 0 {
		return nil, fmt.Errorf("no input files specified")
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var docs []schema.Node
	seen := make(map[string]bool)
	for _, file := range r.InputFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := cdr.ReadFile(file)
		if err != nil {
			return nil, NewReaderError(file, "failed to read CDR file", err)
		}
		for _, e := range entries {
			doc, err := r.document(file, e)
			if err != nil {
				return nil, NewReaderError(file, fmt.Sprintf("line %d", e.Line), err)
			}
			// Chunk ids derive from document ids, so a repeated id would
			// overwrite the earlier record in the store.
			if seen[doc.ID] {
				id := fmt.Sprintf("%s-line-%d", doc.ID, e.Line)
				if seen[id] {
					id = fmt.Sprintf("%s-%s-line-%d", doc.ID, filepath.Base(file), e.Line)
				}
				logger.Warn("duplicate record id, using line-qualified id", "file", file, "line", e.Line, "record_id", doc.ID, "id", id)
				doc.ID = id
			}
			seen[doc.ID] = true
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (r *CDRReader) document(file string, e cdr.Entry) (schema.Node, error) {
	sum, err := e.Summary()
	if err != nil {
		return schema.Node{}, err
	}
	meta := map[string]interface{}{
		"source":   file,
		MetaKind:   e.Kind.String(),
		MetaLine:   e.Line,
		"metrics":  len(sum.Metrics),
		"recordId": sum.RecordID,
	}
	for _, key := range []string{cdr.FieldConferenceID, cdr.FieldOrganizerUPN, cdr.FieldCallType, cdr.FieldClientPlatform, cdr.FieldStartDateTime} {
		if v, ok := sum.Fields[key]; ok && v != "" && v != cdr.NotAvailable {
			meta[key] = v
		}
	}
	if r.Router != nil {
		d := r.Router.Route(router.RecordFromSummary(sum))
		meta[MetaRoute] = string(d.Category)
		if d.Routed() {
			meta[MetaRouteRule] = d.Rule
		}
	}
	copyMetadata(meta, r.ExtraMetadata)

	id := sum.RecordID
	if id == "" {
		id = fmt.Sprintf("line-%d", e.Line)
	}
	return *schema.NewDocument(id, sum.Text, meta), nil
}
