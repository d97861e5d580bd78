package renderer

// Quality selects one of Manim's render presets.
type Quality string

const (
	QualityLow    Quality = "l"
	QualityMedium Quality = "m"
	QualityHigh   Quality = "h"
)

// Preset is the Manim flag for a quality and the resolution directory it
// renders into.
type Preset struct {
	Flag       string
	Resolution string
}

var presets = map[Quality]Preset{
	QualityLow:    {Flag: "-ql", Resolution: "480p15"},
	QualityMedium: {Flag: "-qm", Resolution: "720p30"},
	QualityHigh:   {Flag: "-qh", Resolution: "1080p60"},
}

// Valid reports whether q names a known preset.
func (q Quality) Valid() bool {
	_, ok := presets[q]
	return ok
}

// Preset returns the preset for q. Unknown values get the lowest preset.
func (q Quality) Preset() Preset {
	if p, ok := presets[q]; ok {
		return p
	}
	return presets[QualityLow]
}
