package preset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModel(t *testing.T) {
	for _, m := range Models() {
		t.Run(string(m), func(t *testing.T) {
			parsed, err := ParseModel(string(m))
			require.NoError(t, err)
			assert.Equal(t, m, parsed)
		})
	}

	t.Run("unknown model rejected", func(t *testing.T) {
		_, err := ParseModel("rm1")
		assert.Error(t, err)

		// case-sensitive ids
		_, err = ParseModel("RM2")
		assert.Error(t, err)
	})
}

func TestDefaultPresets(t *testing.T) {
	tests := []struct {
		model    Model
		widthIn  float64
		heightIn float64
		marginPt int
		fontPt   int
		size     string
	}{
		{ModelRM2, 6.2, 8.3, 36, 18, "6.2x8.3"},
		{ModelPaperPro, 7.1, 9.4, 36, 20, "7.1x9.4"},
		{ModelProMove, 3.6, 6.4, 18, 14, "3.6x6.4"},
	}

	for _, tt := range tests {
		t.Run(string(tt.model), func(t *testing.T) {
			p, err := Default(tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.model, p.Model)
			assert.Equal(t, tt.widthIn, p.PageWidthIn)
			assert.Equal(t, tt.heightIn, p.PageHeightIn)
			assert.Equal(t, tt.marginPt, p.MarginPt)
			assert.Equal(t, tt.fontPt, p.FontSizePt)
			assert.True(t, p.EmbedAllFonts)
			assert.Empty(t, p.FontFamily)
			assert.Equal(t, tt.size, p.CustomSize())
			assert.InDelta(t, tt.widthIn*72, p.PageWidthPt(), 0.001)
			assert.InDelta(t, tt.heightIn*72, p.PageHeightPt(), 0.001)
		})
	}
}

func TestPresetFor_OverlaysWithoutMutatingDefaults(t *testing.T) {
	noEmbed := false
	custom, err := PresetFor(ModelRM2, Overrides{
		MarginPt:      12,
		FontSizePt:    22,
		FontFamily:    "Literata",
		EmbedAllFonts: &noEmbed,
	})
	require.NoError(t, err)

	assert.Equal(t, 12, custom.MarginPt)
	assert.Equal(t, 22, custom.FontSizePt)
	assert.Equal(t, "Literata", custom.FontFamily)
	assert.False(t, custom.EmbedAllFonts)
	// page geometry is model-bound, not overridable
	assert.Equal(t, "6.2x8.3", custom.CustomSize())

	// the registry still hands out pristine defaults afterwards
	fresh, err := PresetFor(ModelRM2, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, 36, fresh.MarginPt)
	assert.Equal(t, 18, fresh.FontSizePt)
	assert.Empty(t, fresh.FontFamily)
	assert.True(t, fresh.EmbedAllFonts)
}

func TestPresetFor_ZeroOverridesKeepDefaults(t *testing.T) {
	p, err := PresetFor(ModelPaperPro, Overrides{})
	require.NoError(t, err)

	d, err := Default(ModelPaperPro)
	require.NoError(t, err)
	assert.Equal(t, d, p)
}

func TestPresetFor_ModelSwitchYieldsNewDefaults(t *testing.T) {
	// switching models with empty overrides must yield exactly the new
	// model's defaults, with nothing carried over
	a, err := PresetFor(ModelRM2, Overrides{})
	require.NoError(t, err)
	b, err := PresetFor(ModelProMove, Overrides{})
	require.NoError(t, err)

	assert.NotEqual(t, a.CustomSize(), b.CustomSize())
	assert.Equal(t, 18, b.MarginPt)
	assert.Equal(t, 14, b.FontSizePt)
}

func TestPresetFor_UnknownModel(t *testing.T) {
	_, err := PresetFor(Model("rm9"), Overrides{})
	assert.Error(t, err)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "reMarkable 2", DisplayName(ModelRM2))
	assert.Equal(t, "reMarkable Paper Pro", DisplayName(ModelPaperPro))
	assert.Equal(t, "rm9", DisplayName(Model("rm9")))
}
