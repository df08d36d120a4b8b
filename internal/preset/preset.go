// Package preset maps device models to the page geometry used when
// converting documents for their screens.
package preset

import (
	"fmt"
	"strconv"
)

// Model identifies a supported device model. The set is closed: adding a
// model means adding a table entry below, nothing else.
type Model string

const (
	ModelRM2      Model = "rm2"
	ModelPaperPro Model = "paper-pro"
	ModelProMove  Model = "pro-move"
)

// DefaultModel is assumed when the user never picked one.
const DefaultModel = ModelPaperPro

// Preset is the conversion geometry for one device model. Page dimensions
// are carried in inches (what the converter consumes); point values derive
// from them at 72 points per inch.
type Preset struct {
	Model         Model
	PageWidthIn   float64
	PageHeightIn  float64
	MarginPt      int
	FontSizePt    int
	FontFamily    string
	EmbedAllFonts bool
}

// Overrides overlay user configuration on a model's defaults. Zero values
// mean "keep the default"; EmbedAllFonts uses a pointer so false is
// distinguishable from unset.
type Overrides struct {
	MarginPt      int
	FontSizePt    int
	FontFamily    string
	EmbedAllFonts *bool
}

// defaults holds the built-in preset per model. Screen sizes come from the
// device hardware; margins and font sizes are the values that render well
// on each panel.
var defaults = map[Model]Preset{
	ModelRM2: {
		Model:         ModelRM2,
		PageWidthIn:   6.2,
		PageHeightIn:  8.3,
		MarginPt:      36,
		FontSizePt:    18,
		EmbedAllFonts: true,
	},
	ModelPaperPro: {
		Model:         ModelPaperPro,
		PageWidthIn:   7.1,
		PageHeightIn:  9.4,
		MarginPt:      36,
		FontSizePt:    20,
		EmbedAllFonts: true,
	},
	ModelProMove: {
		Model:         ModelProMove,
		PageWidthIn:   3.6,
		PageHeightIn:  6.4,
		MarginPt:      18,
		FontSizePt:    14,
		EmbedAllFonts: true,
	},
}

var displayNames = map[Model]string{
	ModelRM2:      "reMarkable 2",
	ModelPaperPro: "reMarkable Paper Pro",
	ModelProMove:  "reMarkable Paper Pro Move",
}

// Models returns the supported models in stable order.
func Models() []Model {
	return []Model{ModelRM2, ModelPaperPro, ModelProMove}
}

// ParseModel validates a configured model id.
func ParseModel(s string) (Model, error) {
	m := Model(s)
	if _, ok := defaults[m]; !ok {
		return "", fmt.Errorf("unknown device model %q", s)
	}
	return m, nil
}

// DisplayName returns the marketing name for a model, or the raw id when
// the model is unknown.
func DisplayName(m Model) string {
	if name, ok := displayNames[m]; ok {
		return name
	}
	return string(m)
}

// Default returns the built-in preset for a model.
func Default(m Model) (Preset, error) {
	p, ok := defaults[m]
	if !ok {
		return Preset{}, fmt.Errorf("unknown device model %q", m)
	}
	return p, nil
}

// PresetFor overlays overrides on a model's defaults and returns the
// result. It is pure: the built-in table is never mutated, and equal
// inputs always produce equal outputs.
func PresetFor(m Model, o Overrides) (Preset, error) {
	p, err := Default(m)
	if err != nil {
		return Preset{}, err
	}

	if o.MarginPt > 0 {
		p.MarginPt = o.MarginPt
	}
	if o.FontSizePt > 0 {
		p.FontSizePt = o.FontSizePt
	}
	if o.FontFamily != "" {
		p.FontFamily = o.FontFamily
	}
	if o.EmbedAllFonts != nil {
		p.EmbedAllFonts = *o.EmbedAllFonts
	}
	return p, nil
}

// PageWidthPt returns the page width in points.
func (p Preset) PageWidthPt() float64 { return p.PageWidthIn * 72 }

// PageHeightPt returns the page height in points.
func (p Preset) PageHeightPt() float64 { return p.PageHeightIn * 72 }

// CustomSize renders the page size the way the converter's --custom-size
// flag expects, e.g. "6.2x8.3".
func (p Preset) CustomSize() string {
	w := strconv.FormatFloat(p.PageWidthIn, 'f', -1, 64)
	h := strconv.FormatFloat(p.PageHeightIn, 'f', -1, 64)
	return w + "x" + h
}
