package dataset

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const bytesPerMB = 1024 * 1024

// UploadOptions configures CSV ingestion
type UploadOptions struct {
	MaxSizeMB float64 `json:"max_size_mb"` // Size ceiling checked before parsing
}

// DefaultUploadOptions returns the default 5 MB ceiling
func DefaultUploadOptions() UploadOptions {
	return UploadOptions{MaxSizeMB: 5}
}

// MaxBytes returns the ceiling in bytes
func (o UploadOptions) MaxBytes() int64 {
	return int64(o.MaxSizeMB * bytesPerMB)
}

// TooLarge returns the error reported for an upload over the ceiling
func (o UploadOptions) TooLarge() *UploadError {
	return &UploadError{
		Err:     ErrFileTooLarge,
		Message: fmt.Sprintf("File size must be less than %sMB", strconv.FormatFloat(o.MaxSizeMB, 'f', -1, 64)),
	}
}

// UploadError carries the message shown inline to the user next to the upload control.
// It unwraps to ErrFileTooLarge or ErrParse.
type UploadError struct {
	Err     error
	Message string
}

func (e *UploadError) Error() string {
	return e.Message
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Ingest checks size against the ceiling and parses r. Pass size < 0 when the length is not
// known up front; the reader is then capped at the ceiling.
func Ingest(size int64, r io.Reader, opts UploadOptions) (*Table, error) {
	if opts.MaxSizeMB <= 0 {
		opts = DefaultUploadOptions()
	}
	limit := opts.MaxBytes()
	tooLarge := opts.TooLarge()
	if size > limit {
		return nil, tooLarge
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, &UploadError{Err: fmt.Errorf("%w: %v", ErrParse, err), Message: parseMessage}
	}
	if int64(len(data)) > limit {
		return nil, tooLarge
	}

	table, err := ParseString(string(data))
	if err != nil {
		return nil, &UploadError{Err: fmt.Errorf("%w: %v", ErrParse, err), Message: parseMessage}
	}
	return table, nil
}

const parseMessage = "Error parsing file. Please ensure it's a valid CSV."

// Parse reads comma-delimited text from r. The first line is the header; blank lines are
// skipped. There is no quoting or escaping: every comma separates a field.
func Parse(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return ParseString(string(data))
}

// ParseString is Parse over an in-memory string
func ParseString(text string) (*Table, error) {
	lines := strings.Split(text, "\n")
	if strings.TrimSpace(lines[0]) == "" {
		return nil, ErrNoHeader
	}

	rawHeader := strings.Split(lines[0], ",")
	header := make([]string, len(rawHeader))
	for i, h := range rawHeader {
		header[i] = strings.TrimSpace(h)
	}

	table := &Table{Header: header, Records: make([]Record, 0, len(lines)-1)}
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		rec := make(Record, len(header))
		for i, name := range header {
			if i >= len(fields) {
				rec[name] = Value{Kind: KindMissing}
				continue
			}
			rec[name] = coerce(fields[i])
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

// coerce turns numeric-looking text into a number and leaves everything else as text.
// Only the exact spellings Infinity, +Infinity and -Infinity name an infinity; decimal
// literals too large for a float64 overflow to one
func coerce(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.ContainsAny(trimmed, "_xX") {
		return Text(raw)
	}
	switch trimmed {
	case "Infinity", "+Infinity":
		return Number(math.Inf(1))
	case "-Infinity":
		return Number(math.Inf(-1))
	}

	f, err := strconv.ParseFloat(trimmed, 64)
	overflow := errors.Is(err, strconv.ErrRange)
	if err != nil && !overflow {
		return Text(raw)
	}
	// inf and nan in any other spelling stay text
	if math.IsNaN(f) || math.IsInf(f, 0) && !overflow {
		return Text(raw)
	}
	return Number(f)
}
