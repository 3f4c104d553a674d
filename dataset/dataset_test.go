package dataset

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleTable(t *testing.T) {
	table, err := ParseString("x,y\n1,2\n3,4")
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y"}, table.Header)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, []Point{{X: 1, Y: 2}, {X: 3, Y: 4}}, Points(table, "x", "y"))
	assert.Equal(t, Number(1), table.Get(0)["x"])
}

func TestParseSkipsBlankLinesAndTrimsHeader(t *testing.T) {
	table, err := ParseString(" x , y \r\n\n1,2\r\n   \n5,6\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y"}, table.Header)
	assert.Equal(t, []Point{{X: 1, Y: 2}, {X: 5, Y: 6}}, Points(table, "x", "y"))
}

func TestParseKeepsTextAndMarksMissing(t *testing.T) {
	table, err := ParseString("x,y,label\n1,abc\n0,2,cat,extra")
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	first := table.Get(0)
	assert.Equal(t, KindNumber, first["x"].Kind)
	assert.Equal(t, Text("abc"), first["y"])
	assert.Equal(t, KindMissing, first["label"].Kind)
	assert.True(t, math.IsNaN(first.Float("y")))
	assert.True(t, math.IsNaN(first.Float("label")))
	assert.True(t, math.IsNaN(first.Float("nope")))

	second := table.Get(1)
	assert.Equal(t, Number(0), second["x"])
	assert.Equal(t, Text("cat"), second["label"])
	assert.Len(t, second, 3)
}

func TestCoerceNumericEdges(t *testing.T) {
	cases := map[string]Value{
		"1e400":     Number(math.Inf(1)),
		"-1e400":    Number(math.Inf(-1)),
		"1e-400":    Number(0),
		"Infinity":  Number(math.Inf(1)),
		"+Infinity": Number(math.Inf(1)),
		"-Infinity": Number(math.Inf(-1)),
		" 2.5 ":     Number(2.5),
		"inf":       Text("inf"),
		"-inf":      Text("-inf"),
		"infinity":  Text("infinity"),
		"NaN":       Text("NaN"),
		" 1_0":      Text(" 1_0"),
		"0x10":      Text("0x10"),
		"0x1p4":     Text("0x1p4"),
		"--1":       Text("--1"),
	}
	for raw, want := range cases {
		assert.Equal(t, want, coerce(raw), "coerce(%q)", raw)
	}
}

func TestParseRejectsEmptyInput(t *testing.T) {
	_, err := ParseString("")
	assert.ErrorIs(t, err, ErrNoHeader)

	_, err = Parse(strings.NewReader("   \n1,2"))
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestIngestEnforcesCeiling(t *testing.T) {
	opts := UploadOptions{MaxSizeMB: 1}

	_, err := Ingest(2*bytesPerMB, strings.NewReader("x,y\n1,2"), opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, "File size must be less than 1MB", err.Error())

	big := strings.Repeat("1,2\n", bytesPerMB/4+10)
	_, err = Ingest(-1, strings.NewReader("x,y\n"+big), opts)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	table, err := Ingest(7, strings.NewReader("x,y\n1,2"), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
}

func TestIngestReportsParseErrors(t *testing.T) {
	_, err := Ingest(0, strings.NewReader(""), DefaultUploadOptions())
	require.Error(t, err)

	var uerr *UploadError
	require.True(t, errors.As(err, &uerr))
	assert.ErrorIs(t, err, ErrParse)
	assert.Equal(t, parseMessage, uerr.Message)
}

func TestSyntheticGenerators(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	lin := LinearSample(rng, DefaultLinearSamples)
	require.Len(t, lin, 50)
	for i, p := range lin {
		assert.InDelta(t, float64(i)/5, p.X, 1e-12)
		assert.InDelta(t, 2*p.X+1, p.Y, 1.0)
	}

	cloud := UniformCloud(rng, DefaultCloudSamples, DefaultCloudExtent)
	require.Len(t, cloud, 100)
	for _, p := range cloud {
		assert.GreaterOrEqual(t, p.X, 0.0)
		assert.Less(t, p.X, 100.0)
		assert.GreaterOrEqual(t, p.Y, 0.0)
		assert.Less(t, p.Y, 100.0)
	}

	again := LinearSample(rand.New(rand.NewSource(7)), DefaultLinearSamples)
	assert.Equal(t, lin, again, "same seed must reproduce the sample")
}
