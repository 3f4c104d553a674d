package dataset

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointJSONHandlesNonFinite(t *testing.T) {
	pts := []Point{{X: 1.5, Y: -2}, {X: math.NaN(), Y: math.Inf(1)}, {X: math.Inf(-1), Y: 0}}

	b, err := json.Marshal(pts)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"x":1.5,"y":-2},{"x":"NaN","y":"Infinity"},{"x":"-Infinity","y":0}]`, string(b))

	var back []Point
	require.NoError(t, json.Unmarshal(b, &back))
	require.Len(t, back, 3)
	assert.Equal(t, pts[0], back[0])
	assert.True(t, math.IsNaN(back[1].X))
	assert.True(t, math.IsInf(back[1].Y, 1))
	assert.True(t, math.IsInf(back[2].X, -1))
}

func TestSeriesJSON(t *testing.T) {
	s := Series{1, math.NaN()}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `[1,"NaN"]`, string(b))

	var back Series
	require.NoError(t, json.Unmarshal(b, &back))
	require.Len(t, back, 2)
	assert.True(t, math.IsNaN(back[1]))

	var empty Series
	b, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestFloatRejectsUnknownStrings(t *testing.T) {
	var f Float
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &f))
	require.NoError(t, json.Unmarshal([]byte(`2.25`), &f))
	assert.Equal(t, Float(2.25), f)
}
