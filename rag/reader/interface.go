// Package reader loads source files into documents for indexing.
package reader

import (
	"context"

	"github.com/aqua777/go-callrag/schema"
)

// Reader is the interface for document loaders.
type Reader interface {
	// LoadData loads documents and returns them as a slice.
	LoadData() ([]schema.Node, error)
}

// ReaderWithContext is a Reader that supports context for cancellation.
type ReaderWithContext interface {
	Reader
	LoadDataWithContext(ctx context.Context) ([]schema.Node, error)
}

// ReaderError represents an error during document loading.
type ReaderError struct {
	Source  string // File path that caused the error
	Message string
	Err     error
}

func (e *ReaderError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Source + ": " + e.Message
}

func (e *ReaderError) Unwrap() error {
	return e.Err
}

// NewReaderError creates a new ReaderError.
func NewReaderError(source, message string, err error) *ReaderError {
	return &ReaderError{
		Source:  source,
		Message: message,
		Err:     err,
	}
}

func copyMetadata(dst, src map[string]interface{}) {
	for k, v := range src {
		dst[k] = v
	}
}
