package polymarket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`"[\"Yes\", \"No\"]"`, []string{"Yes", "No"}},
		{`["Yes","No"]`, []string{"Yes", "No"}},
		{`"[0.5, 0.5]"`, []string{"0.5", "0.5"}},
		{`""`, nil},
		{`null`, nil},
	}
	for _, tt := range tests {
		var l stringList
		require.NoError(t, json.Unmarshal([]byte(tt.in), &l), tt.in)
		assert.Equal(t, tt.want, []string(l), tt.in)
	}

	var l stringList
	assert.Error(t, json.Unmarshal([]byte(`"not json"`), &l))
}

func TestFlexFloat_Unmarshal(t *testing.T) {
	var v struct {
		A flexFloat `json:"a"`
		B flexFloat `json:"b"`
		C flexFloat `json:"c"`
		D flexFloat `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 1.5, "b": "2.25", "c": "", "d": null}`), &v))
	assert.Equal(t, flexFloat(1.5), v.A)
	assert.Equal(t, flexFloat(2.25), v.B)
	assert.Equal(t, flexFloat(0), v.C)
	assert.Equal(t, flexFloat(0), v.D)
}

func TestMapOutcomes_PadsMissingPrices(t *testing.T) {
	out := mapOutcomes([]string{"Yes", "No"}, []string{"0.3"})
	require.Len(t, out, 2)
	assert.Equal(t, 0.3, out[0].Price)
	assert.Equal(t, 0.0, out[1].Price)
	assert.Nil(t, mapOutcomes(nil, []string{"0.3"}))
}

func TestMapGammaMarket_FallsBackToConditionID(t *testing.T) {
	m := mapGammaMarket(gammaMarket{ConditionID: "0xc", Active: true})
	assert.Equal(t, "0xc", m.ID)
}
