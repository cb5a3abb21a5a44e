package converter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/james-see/sf2opxy/pkg/soundfont"
)

// Preset outcome status
const (
	StatusConverted = "converted"
	StatusSkipped   = "skipped"
)

// Report file names
const (
	ReportJSON = "conversion-log.json"
	ReportText = "conversion-log.txt"
)

// PresetOutcome is the result for one source preset
type PresetOutcome struct {
	Name       string   `json:"name"`
	Bank       int      `json:"bank"`
	Program    int      `json:"program"`
	Kind       Kind     `json:"kind"`
	Reason     string   `json:"classification"`
	Confidence float64  `json:"confidence"`
	Status     string   `json:"status"`
	SkipReason string   `json:"reason,omitempty"`
	Outputs    []string `json:"outputs,omitempty"`
	Zones      int      `json:"zones"`
	Kept       int      `json:"kept"`
}

// Report summarizes a conversion run
type Report struct {
	Source        string          `json:"source,omitempty"`
	Device        string          `json:"device"`
	Calibration   string          `json:"calibration"`
	Info          soundfont.Info  `json:"info"`
	Options       Options         `json:"options"`
	Presets       []PresetOutcome `json:"presets"`
	Discarded     []ZoneEvent     `json:"discarded"`
	Adjustments   []Adjustment    `json:"adjustments"`
	ParseWarnings []string        `json:"parseWarnings"`
	Artifacts     int             `json:"artifacts"`
}

// Converted returns the number of presets with output
func (r *Report) Converted() int {
	n := 0
	for _, p := range r.Presets {
		if p.Status == StatusConverted {
			n++
		}
	}
	return n
}

// JSON renders the report as indented JSON
func (r *Report) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return append(b, '\n'), nil
}

// Text renders a plain text summary
func (r *Report) Text() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "source: %s\n", r.Source)
	fmt.Fprintf(&b, "device: %s (calibration %s)\n", r.Device, r.Calibration)
	fmt.Fprintf(&b, "presets: %d converted, %d skipped, %d files\n\n",
		r.Converted(), len(r.Presets)-r.Converted(), r.Artifacts)

	for _, p := range r.Presets {
		fmt.Fprintf(&b, "[%03d:%03d] %s (%s, %s)\n", p.Bank, p.Program, p.Name, p.Kind, p.Reason)
		if p.Status == StatusSkipped {
			fmt.Fprintf(&b, "  skipped: %s\n", p.SkipReason)
			continue
		}
		fmt.Fprintf(&b, "  zones: %d kept of %d\n", p.Kept, p.Zones)
		for _, o := range p.Outputs {
			fmt.Fprintf(&b, "  -> %s\n", o)
		}
	}

	if len(r.Adjustments) > 0 {
		b.WriteString("\nadjustments:\n")
		for _, a := range r.Adjustments {
			line := []string{a.Preset}
			if a.Sample != "" {
				line = append(line, a.Sample)
			}
			fmt.Fprintf(&b, "  %s [%s] %s\n", strings.Join(line, "/"), a.Kind, a.Message)
		}
	}
	if len(r.Discarded) > 0 {
		b.WriteString("\ndiscarded zones:\n")
		for _, d := range r.Discarded {
			fmt.Fprintf(&b, "  %s/%s keys %d-%d vel %d-%d: %s\n", d.Preset, d.Sample, d.KeyLo, d.KeyHi, d.VelLo, d.VelHi, d.Reason)
		}
	}
	if len(r.ParseWarnings) > 0 {
		b.WriteString("\nparse warnings:\n")
		for _, w := range r.ParseWarnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}
	return b.Bytes()
}
