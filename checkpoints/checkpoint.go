// Package checkpoints saves and restores widget snapshots, either as indented JSON or as a
// protobuf-encoded google.protobuf.Struct carrying the same document.
package checkpoints

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tsawler/go-mlplayground/kmeans"
	"github.com/tsawler/go-mlplayground/qlearn"
	"github.com/tsawler/go-mlplayground/regression"
)

const (
	Framework = "go-mlplayground"
	Version   = "1.0.0"
)

// ErrInvalidCheckpoint indicates a checkpoint that does not carry exactly one snapshot
var ErrInvalidCheckpoint = errors.New("checkpoints: invalid checkpoint")

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatProto
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatProto:
		return "Proto"
	default:
		return "Unknown"
	}
}

// ContentType is the media type used when serving the format over HTTP
func (cf CheckpointFormat) ContentType() string {
	if cf == FormatProto {
		return "application/x-protobuf"
	}
	return "application/json"
}

// Extension is the conventional file extension for the format
func (cf CheckpointFormat) Extension() string {
	if cf == FormatProto {
		return ".pb"
	}
	return ".json"
}

// ParseFormat maps "json", "proto" or "protobuf" to a format; empty means JSON
func ParseFormat(s string) (CheckpointFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "proto", "protobuf", "pb":
		return FormatProto, nil
	default:
		return FormatJSON, fmt.Errorf("unsupported checkpoint format: %q", s)
	}
}

// Checkpoint is the saved state of one widget
type Checkpoint struct {
	Widget string `json:"widget"`

	// Exactly one of these is set, matching Widget
	Regression *regression.Snapshot `json:"regression,omitempty"`
	KMeans     *kmeans.Snapshot     `json:"kmeans,omitempty"`
	QLearning  *qlearn.Snapshot     `json:"qlearning,omitempty"`

	Metadata CheckpointMetadata `json:"metadata"`
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	ID          string    `json:"id"`
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// Validate checks that exactly one snapshot is present and that it can be restored
func (c *Checkpoint) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil checkpoint", ErrInvalidCheckpoint)
	}
	n := 0
	if c.Regression != nil {
		n++
	}
	if c.KMeans != nil {
		n++
	}
	if c.QLearning != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("%w: %d snapshots in checkpoint for %q", ErrInvalidCheckpoint, n, c.Widget)
	}
	if c.Widget == "" {
		return fmt.Errorf("%w: missing widget name", ErrInvalidCheckpoint)
	}

	var err error
	switch {
	case c.Regression != nil:
		err = c.Regression.Validate()
	case c.KMeans != nil:
		err = c.KMeans.Validate()
	case c.QLearning != nil:
		err = c.QLearning.Validate()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCheckpoint, err)
	}
	return nil
}

// stamp fills in metadata left empty by the caller
func (c *Checkpoint) stamp() {
	if c.Metadata.ID == "" {
		c.Metadata.ID = uuid.NewString()
	}
	if c.Metadata.Framework == "" {
		c.Metadata.Framework = Framework
		c.Metadata.Version = Version
	}
	if c.Metadata.CreatedAt.IsZero() {
		c.Metadata.CreatedAt = time.Now().UTC()
	}
}

// CheckpointSaver handles saving checkpoints in one format
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// Format returns the saver's format
func (cs *CheckpointSaver) Format() CheckpointFormat {
	return cs.format
}

// Encode serializes checkpoint, stamping missing metadata first
func (cs *CheckpointSaver) Encode(checkpoint *Checkpoint) ([]byte, error) {
	if err := checkpoint.Validate(); err != nil {
		return nil, err
	}
	checkpoint.stamp()

	switch cs.format {
	case FormatJSON:
		var buf bytes.Buffer
		encoder := json.NewEncoder(&buf)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(checkpoint); err != nil {
			return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
		}
		return buf.Bytes(), nil
	case FormatProto:
		return encodeProto(checkpoint)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// Decode parses data produced by Encode
func (cs *CheckpointSaver) Decode(data []byte) (*Checkpoint, error) {
	var checkpoint Checkpoint
	switch cs.format {
	case FormatJSON:
		if err := json.Unmarshal(data, &checkpoint); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
		}
	case FormatProto:
		if err := decodeProto(data, &checkpoint); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}

	if err := checkpoint.Validate(); err != nil {
		return nil, err
	}
	return &checkpoint, nil
}

// SaveCheckpoint writes checkpoint to path
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	data, err := cs.Encode(checkpoint)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint from path
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	return cs.Decode(data)
}

// encodeProto carries the JSON document inside a google.protobuf.Struct
func encodeProto(checkpoint *Checkpoint) ([]byte, error) {
	raw, err := json.Marshal(checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	st, err := structpb.NewStruct(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build checkpoint struct: %w", err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint proto: %w", err)
	}
	return data, nil
}

func decodeProto(data []byte, checkpoint *Checkpoint) error {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to unmarshal checkpoint proto: %w", err)
	}
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if err := json.Unmarshal(raw, checkpoint); err != nil {
		return fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return nil
}
