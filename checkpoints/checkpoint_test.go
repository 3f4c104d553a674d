package checkpoints

import (
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tsawler/go-mlplayground/dataset"
	"github.com/tsawler/go-mlplayground/kmeans"
	"github.com/tsawler/go-mlplayground/qlearn"
	"github.com/tsawler/go-mlplayground/regression"
)

func regressionCheckpoint(t *testing.T) *Checkpoint {
	t.Helper()
	tr, err := regression.NewTrainer(dataset.LinearSample(rand.New(rand.NewSource(1)), 20), regression.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create trainer: %v", err)
	}
	for i := 0; i < 15; i++ {
		tr.Step()
	}
	snap := tr.Snapshot()
	return &Checkpoint{Widget: "regression", Regression: &snap}
}

func kmeansCheckpoint(t *testing.T) *Checkpoint {
	t.Helper()
	c, err := kmeans.NewClusterer(
		dataset.UniformCloud(rand.New(rand.NewSource(2)), 40, 100),
		kmeans.DefaultConfig(),
		rand.New(rand.NewSource(3)),
	)
	if err != nil {
		t.Fatalf("Failed to create clusterer: %v", err)
	}
	c.Step()
	c.Step()
	snap := c.Snapshot()
	return &Checkpoint{Widget: "kmeans", KMeans: &snap}
}

func qlearnCheckpoint(t *testing.T) *Checkpoint {
	t.Helper()
	a, err := qlearn.NewAgent(qlearn.RandomPolicy(rand.New(rand.NewSource(4))))
	if err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}
	for i := 0; i < 30; i++ {
		a.Step()
	}
	snap := a.Snapshot()
	return &Checkpoint{Widget: "qlearning", QLearning: &snap}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    CheckpointFormat
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"proto", FormatProto, false},
		{"protobuf", FormatProto, false},
		{"onnx", FormatJSON, true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if FormatProto.ContentType() != "application/x-protobuf" || FormatJSON.Extension() != ".json" {
		t.Error("Unexpected format helpers")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	builders := map[string]func(*testing.T) *Checkpoint{
		"regression": regressionCheckpoint,
		"kmeans":     kmeansCheckpoint,
		"qlearning":  qlearnCheckpoint,
	}

	for _, format := range []CheckpointFormat{FormatJSON, FormatProto} {
		for name, build := range builders {
			t.Run(format.String()+"/"+name, func(t *testing.T) {
				original := build(t)
				saver := NewCheckpointSaver(format)

				path := filepath.Join(t.TempDir(), "checkpoint"+format.Extension())
				if err := saver.SaveCheckpoint(original, path); err != nil {
					t.Fatalf("Failed to save checkpoint: %v", err)
				}
				loaded, err := saver.LoadCheckpoint(path)
				if err != nil {
					t.Fatalf("Failed to load checkpoint: %v", err)
				}

				if loaded.Widget != original.Widget {
					t.Errorf("Widget mismatch: got %s, want %s", loaded.Widget, original.Widget)
				}
				if !reflect.DeepEqual(loaded.Regression, original.Regression) {
					t.Errorf("Regression snapshot mismatch")
				}
				if !reflect.DeepEqual(loaded.KMeans, original.KMeans) {
					t.Errorf("KMeans snapshot mismatch")
				}
				if !reflect.DeepEqual(loaded.QLearning, original.QLearning) {
					t.Errorf("QLearning snapshot mismatch")
				}
				if loaded.Metadata.ID != original.Metadata.ID {
					t.Errorf("ID mismatch: got %s, want %s", loaded.Metadata.ID, original.Metadata.ID)
				}
				if !loaded.Metadata.CreatedAt.Equal(original.Metadata.CreatedAt) {
					t.Errorf("CreatedAt mismatch: got %v, want %v", loaded.Metadata.CreatedAt, original.Metadata.CreatedAt)
				}
			})
		}
	}
}

func TestEncodeStampsMetadata(t *testing.T) {
	cp := qlearnCheckpoint(t)
	if _, err := NewCheckpointSaver(FormatJSON).Encode(cp); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if _, err := uuid.Parse(cp.Metadata.ID); err != nil {
		t.Errorf("Expected UUID checkpoint ID, got %q", cp.Metadata.ID)
	}
	if cp.Metadata.Framework != Framework || cp.Metadata.Version != Version {
		t.Errorf("Unexpected framework metadata %+v", cp.Metadata)
	}
	if cp.Metadata.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	id := cp.Metadata.ID
	if _, err := NewCheckpointSaver(FormatProto).Encode(cp); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if cp.Metadata.ID != id {
		t.Error("Existing ID must be kept")
	}
}

func TestNaNSurvivesProto(t *testing.T) {
	tr, err := regression.NewTrainer(nil, regression.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create trainer: %v", err)
	}
	tr.Step()
	snap := tr.Snapshot()

	saver := NewCheckpointSaver(FormatProto)
	data, err := saver.Encode(&Checkpoint{Widget: "regression", Regression: &snap})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	loaded, err := saver.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !math.IsNaN(loaded.Regression.Loss[0].Loss) {
		t.Errorf("Expected NaN loss, got %v", loaded.Regression.Loss[0].Loss)
	}
}

func TestInvalidCheckpoints(t *testing.T) {
	saver := NewCheckpointSaver(FormatJSON)

	if _, err := saver.Encode(&Checkpoint{Widget: "regression"}); !errors.Is(err, ErrInvalidCheckpoint) {
		t.Errorf("Expected ErrInvalidCheckpoint for empty checkpoint, got %v", err)
	}

	both := regressionCheckpoint(t)
	both.KMeans = kmeansCheckpoint(t).KMeans
	if _, err := saver.Encode(both); !errors.Is(err, ErrInvalidCheckpoint) {
		t.Errorf("Expected ErrInvalidCheckpoint for two snapshots, got %v", err)
	}

	broken := kmeansCheckpoint(t)
	broken.KMeans.K = 9
	if _, err := saver.Encode(broken); !errors.Is(err, ErrInvalidCheckpoint) || !errors.Is(err, kmeans.ErrClusterCountRange) {
		t.Errorf("Expected ErrInvalidCheckpoint wrapping the cluster range error, got %v", err)
	}

	short := qlearnCheckpoint(t)
	short.QLearning.Rewards = short.QLearning.Rewards[:1]
	if err := short.Validate(); !errors.Is(err, ErrInvalidCheckpoint) {
		t.Errorf("Expected ErrInvalidCheckpoint for truncated rewards, got %v", err)
	}

	if _, err := saver.Decode([]byte("not json")); err == nil {
		t.Error("Expected decode error")
	}
	if _, err := NewCheckpointSaver(FormatProto).Decode([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("Expected proto decode error")
	}
	if _, err := saver.LoadCheckpoint(filepath.Join(t.TempDir(), "missing.json")); err == nil ||
		!strings.Contains(err.Error(), "failed to open checkpoint file") {
		t.Errorf("Expected open error, got %v", err)
	}
}
