package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/opticderm/internal/catalog"
)

var (
	keratin = catalog.Descriptor{Name: "keratin dominance", Unit: "ratio", Kind: catalog.KindNumeric}
	redox   = catalog.Descriptor{Name: "metabolic state", Kind: catalog.KindCategorical, Levels: []string{"very low", "low", "normal", "high"}}
)

func TestClassifyNumeric(t *testing.T) {
	r := catalog.ReferenceRange{Low: 0.15, High: 0.45}
	tests := []struct {
		value float64
		want  Classification
	}{
		{0.15, Normal},
		{0.30, Normal},
		{0.45, Normal},
		{0.46, Elevated},
		{0.14, Reduced},
	}
	for _, tt := range tests {
		got, err := Classify(keratin, catalog.NumberValue(tt.value), r)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "value %v", tt.value)
	}
}

func TestClassifyCategorical(t *testing.T) {
	r := catalog.ReferenceRange{Normal: []string{"low", "normal"}}
	tests := []struct {
		level string
		want  Classification
	}{
		{"very low", Reduced},
		{"low", Normal},
		{"normal", Normal},
		{"high", Elevated},
	}
	for _, tt := range tests {
		got, err := Classify(redox, catalog.LevelValue(tt.level), r)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "level %s", tt.level)
	}
}

func TestClassifyRejectsMismatchedValues(t *testing.T) {
	_, err := Classify(keratin, catalog.LevelValue("high"), catalog.ReferenceRange{Low: 0, High: 1})
	require.Error(t, err)

	_, err = Classify(redox, catalog.NumberValue(1), catalog.ReferenceRange{Normal: []string{"normal"}})
	require.Error(t, err)

	_, err = Classify(redox, catalog.LevelValue("extreme"), catalog.ReferenceRange{Normal: []string{"normal"}})
	require.Error(t, err)

	_, err = Classify(redox, catalog.LevelValue("low"), catalog.ReferenceRange{Normal: []string{"very low", "normal"}})
	require.Error(t, err)
}

func TestPositionAndDeviation(t *testing.T) {
	r := catalog.ReferenceRange{Low: 0.2, High: 0.6}

	require.InDelta(t, 0.5, Position(keratin, catalog.NumberValue(0.4), r), 1e-9)
	require.InDelta(t, -0.25, Deviation(keratin, catalog.NumberValue(0.1), r), 1e-9)
	require.Equal(t, 0.0, Position(keratin, catalog.NumberValue(0.1), r))
	require.Equal(t, 1.0, Position(keratin, catalog.NumberValue(0.9), r))

	single := catalog.ReferenceRange{Normal: []string{"normal"}}
	require.InDelta(t, 0.5, Deviation(redox, catalog.LevelValue("normal"), single), 1e-9)
	require.Greater(t, Deviation(redox, catalog.LevelValue("high"), single), 1.0)
	require.Less(t, Deviation(redox, catalog.LevelValue("low"), single), 0.0)

	degenerate := catalog.ReferenceRange{Low: 0.3, High: 0.3}
	require.Equal(t, 0.5, Deviation(keratin, catalog.NumberValue(0.3), degenerate))
}

func TestExplain(t *testing.T) {
	roi := catalog.ROIOption{ID: "dermis"}
	r := catalog.ReferenceRange{Low: 0.15, High: 0.45}

	text := Explain(roi, "healthy skin", keratin, catalog.NumberValue(0.5), r, Elevated)
	require.Equal(t, "In the dermis region, keratin dominance is 0.50 ratio (above normal range; reference for healthy skin: 0.15–0.45). May indicate hyperkeratosis or thickened cornified layers.", text)

	unknown := catalog.Descriptor{Name: "collagen density", Kind: catalog.KindNumeric}
	text = Explain(roi, "healthy skin", unknown, catalog.NumberValue(0.3), r, Normal)
	require.Contains(t, text, "collagen density is 0.30 (within normal range")
	require.Contains(t, text, "Consistent with healthy reference tissue.")
}
