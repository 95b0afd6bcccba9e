package cdr

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

const maxLineBytes = 16 * 1024 * 1024

// Kind tells which record shape a JSONL line holds.
type Kind int

const (
	// KindGeneric is any JSON object that is not a recognised record.
	KindGeneric Kind = iota
	// KindCall is a nested CallRecord.
	KindCall
	// KindFlat is a FlatRecord.
	KindFlat
)

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindFlat:
		return "flat"
	default:
		return "generic"
	}
}

// Entry is one decoded JSONL line.
type Entry struct {
	Line int
	Kind Kind
	Call *CallRecord
	Flat *FlatRecord
	Raw  json.RawMessage
}

// Summary flattens the entry according to its kind.
func (e Entry) Summary() (Summary, error) {
	switch e.Kind {
	case KindCall:
		return Flatten(e.Call), nil
	case KindFlat:
		return SummarizeFlat(*e.Flat), nil
	default:
		s, err := SummarizeJSON("", e.Raw)
		if err != nil {
			return Summary{}, err
		}
		if s.RecordID == "" {
			s.RecordID = "line-" + strconv.Itoa(e.Line)
		}
		return s, nil
	}
}

// LineError reports a malformed line.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ReadEntries decodes every non-blank line of r. Lines with a "sessions" key
// are call records, lines with "conferenceId" are flat records.
func ReadEntries(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var entries []Entry
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		entry, err := decodeEntry(line, raw)
		if err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}
	return entries, nil
}

func decodeEntry(line int, raw []byte) (Entry, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return Entry{}, err
	}
	entry := Entry{Line: line, Raw: append(json.RawMessage(nil), raw...)}
	switch {
	case keys["sessions"] != nil:
		var rec CallRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return Entry{}, err
		}
		entry.Kind = KindCall
		entry.Call = &rec
	case keys[FieldConferenceID] != nil:
		var rec FlatRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return Entry{}, err
		}
		entry.Kind = KindFlat
		entry.Flat = &rec
	default:
		entry.Kind = KindGeneric
	}
	return entry, nil
}

// ReadJSONL reads nested call records. Lines of another shape are an error.
func ReadJSONL(r io.Reader) ([]CallRecord, error) {
	entries, err := ReadEntries(r)
	if err != nil {
		return nil, err
	}
	out := make([]CallRecord, 0, len(entries))
	for _, e := range entries {
		if e.Kind != KindCall {
			return nil, &LineError{Line: e.Line, Err: fmt.Errorf("expected call record, got %s", e.Kind)}
		}
		out = append(out, *e.Call)
	}
	return out, nil
}

// ReadFlatJSONL reads flat records. Lines of another shape are an error.
func ReadFlatJSONL(r io.Reader) ([]FlatRecord, error) {
	entries, err := ReadEntries(r)
	if err != nil {
		return nil, err
	}
	out := make([]FlatRecord, 0, len(entries))
	for _, e := range entries {
		if e.Kind != KindFlat {
			return nil, &LineError{Line: e.Line, Err: fmt.Errorf("expected flat record, got %s", e.Kind)}
		}
		out = append(out, *e.Flat)
	}
	return out, nil
}

// WriteJSONL writes one call record per line.
func WriteJSONL(w io.Writer, records []CallRecord) error {
	return writeLines(w, len(records), func(i int) interface{} { return records[i] })
}

// WriteFlatJSONL writes one flat record per line.
func WriteFlatJSONL(w io.Writer, records []FlatRecord) error {
	return writeLines(w, len(records), func(i int) interface{} { return records[i] })
}

func writeLines(w io.Writer, n int, at func(int) interface{}) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := 0; i < n; i++ {
		if err := enc.Encode(at(i)); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// ReadFile reads every entry of a JSONL file.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	entries, err := ReadEntries(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}
