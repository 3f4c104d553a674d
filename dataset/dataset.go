// Package dataset holds the records the simulations learn from: parsed CSV uploads and
// synthetic samples. Records are immutable once ingested; a new upload replaces the whole table.
package dataset

import (
	"errors"
	"math"
	"strconv"
)

// Sentinel errors for ingestion
var (
	// ErrFileTooLarge indicates the upload exceeds the configured size ceiling
	ErrFileTooLarge = errors.New("dataset: file too large")
	// ErrParse indicates the upload could not be read as delimited text
	ErrParse = errors.New("dataset: unparsable content")
	// ErrNoHeader indicates the upload has no header line
	ErrNoHeader = errors.New("dataset: missing header row")
)

// Kind tells how a field value was coerced during ingestion
type Kind int

const (
	KindMissing Kind = iota // Row had fewer columns than the header
	KindNumber
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a single field of a record
type Value struct {
	Kind Kind    `json:"kind"`
	Num  float64 `json:"num,omitempty"`
	Text string  `json:"text,omitempty"`
}

// Number builds a numeric value
func Number(f float64) Value {
	return Value{Kind: KindNumber, Num: f}
}

// Text builds a textual value
func Text(s string) Value {
	return Value{Kind: KindText, Text: s}
}

// Float returns the numeric form of the value. Text and missing values yield NaN.
func (v Value) Float() float64 {
	if v.Kind == KindNumber {
		return v.Num
	}
	return math.NaN()
}

// Record is one ingested row keyed by header field name
type Record map[string]Value

// Float returns the numeric value of field, NaN when absent or not numeric
func (r Record) Float(field string) float64 {
	v, ok := r[field]
	if !ok {
		return math.NaN()
	}
	return v.Float()
}

// Point is a two dimensional sample
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dataset is an ordered, read-only sequence of records
type Dataset interface {
	Len() int           // Total number of records
	Get(idx int) Record // Record at idx
}

// Table is the in-memory result of ingesting delimited text
type Table struct {
	Header  []string `json:"header"`
	Records []Record `json:"records"`
}

// Len returns the number of records
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Get returns the record at idx
func (t *Table) Get(idx int) Record {
	return t.Records[idx]
}

// Points maps every record of ds to a point built from xField and yField.
// Missing or non-numeric fields become NaN rather than an error.
func Points(ds Dataset, xField, yField string) []Point {
	n := ds.Len()
	pts := make([]Point, n)
	for i := 0; i < n; i++ {
		rec := ds.Get(i)
		pts[i] = Point{X: rec.Float(xField), Y: rec.Float(yField)}
	}
	return pts
}

// ClonePoints returns an independent copy of pts
func ClonePoints(pts []Point) []Point {
	if pts == nil {
		return nil
	}
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}
