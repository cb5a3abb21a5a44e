package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/james-see/sf2opxy/pkg/soundfont"
)

// PresetSuffix is the directory suffix the device expects
const PresetSuffix = ".preset"

// EnsurePresetDir appends the .preset suffix when missing
func EnsurePresetDir(dir string) string {
	if filepath.Ext(dir) == PresetSuffix {
		return dir
	}
	return dir + PresetSuffix
}

// DetectFormat reports whether a file name looks like a SoundFont
func DetectFormat(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".sf2", ".sf3":
		return true
	}
	return false
}

// presetResult is what one worker produces; workers share nothing else
type presetResult struct {
	outcome   PresetOutcome
	artifacts []Artifact
	notes     *notes
}

// Run decodes data and converts every preset, emitting artifacts in bank
// order once all presets are done. Preset failures are isolated and reported;
// the returned error is always a *Failure.
func (c *Converter) Run(ctx context.Context, data []byte, opts Options, emit func(Artifact) error) (*Report, error) {
	if c.device == nil {
		return nil, newFailure(ErrNoDevice)
	}
	if err := opts.Validate(); err != nil {
		return nil, newFailure(err)
	}
	opts = opts.withDefaults()
	log := opts.Logger

	bank, err := soundfont.Decode(data)
	if err != nil {
		return nil, newFailure(err)
	}
	log.Info("decoded soundfont", "name", bank.Info.Name, "presets", len(bank.Presets), "samples", len(bank.Samples))

	presets, err := pickPresets(bank, opts.Presets)
	if err != nil {
		return nil, newFailure(err)
	}

	results := make([]presetResult, len(presets))
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, p := range presets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.safeConvert(p, opts)
			if opts.Progress != nil {
				mu.Lock()
				done++
				opts.Progress(done, len(presets), p.Name)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, newFailure(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, newFailure(err)
	}

	report := &Report{
		Source:        opts.Source,
		Device:        c.device.Name(),
		Calibration:   CalibrationV2.Name,
		Info:          bank.Info,
		Options:       opts,
		ParseWarnings: append([]string{}, bank.Warnings...),
		Discarded:     []ZoneEvent{},
		Adjustments:   []Adjustment{},
	}
	dirs := nameSet{}
	for _, res := range results {
		for i, dir := range res.outcome.Outputs {
			base := strings.TrimSuffix(dir, PresetSuffix)
			if unique := dirs.unique(base); unique != base {
				res.rename(base, unique)
				res.outcome.Outputs[i] = unique + PresetSuffix
			}
		}
		report.Presets = append(report.Presets, res.outcome)
		report.Adjustments = append(report.Adjustments, res.notes.adjust...)
		report.Discarded = append(report.Discarded, res.notes.discarded...)
		for _, a := range res.artifacts {
			if err := emit(a); err != nil {
				return nil, newFailure(fmt.Errorf("failed to emit %s: %w", a.Path, err))
			}
			report.Artifacts++
		}
	}

	// count the two log files themselves
	report.Artifacts += 2
	js, err := report.JSON()
	if err != nil {
		return nil, newFailure(err)
	}
	for _, a := range []Artifact{
		{Path: ReportJSON, Kind: ArtifactReport, Data: js},
		{Path: ReportText, Kind: ArtifactReport, Data: report.Text()},
	} {
		if err := emit(a); err != nil {
			return nil, newFailure(fmt.Errorf("failed to emit %s: %w", a.Path, err))
		}
	}
	log.Info("conversion finished", "converted", report.Converted(), "presets", len(report.Presets), "artifacts", report.Artifacts)
	return report, nil
}

// rename moves the artifacts of one output preset to a new base name
func (r *presetResult) rename(from, to string) {
	for i, a := range r.artifacts {
		switch {
		case strings.HasPrefix(a.Path, from+PresetSuffix+"/"):
			r.artifacts[i].Path = to + PresetSuffix + strings.TrimPrefix(a.Path, from+PresetSuffix)
		case a.Path == path.Join("audition", from+".mid"):
			r.artifacts[i].Path = path.Join("audition", to+".mid")
		}
	}
}

func pickPresets(bank *soundfont.Bank, names []string) ([]*soundfont.Preset, error) {
	var out []*soundfont.Preset
	if len(names) == 0 {
		for i := range bank.Presets {
			out = append(out, &bank.Presets[i])
		}
		return out, nil
	}
	for _, name := range names {
		p, ok := bank.FindPreset(name)
		if !ok {
			return nil, fmt.Errorf("%w: preset %q not found", ErrInvalidOptions, name)
		}
		out = append(out, p)
	}
	return out, nil
}

// safeConvert turns a panic while converting one preset into a skip
func (c *Converter) safeConvert(p *soundfont.Preset, opts Options) (res presetResult) {
	defer func() {
		if r := recover(); r != nil {
			opts.Logger.Error("preset conversion panicked", "preset", p.Name, "panic", r, "stack", string(debug.Stack()))
			res = presetResult{
				outcome: PresetOutcome{
					Name: p.Name, Bank: p.Bank, Program: p.Program, Zones: len(p.Zones),
					Status: StatusSkipped, SkipReason: fmt.Sprintf("internal error: %v", r),
				},
				notes: &notes{preset: p.Name},
			}
		}
	}()
	return c.convertPreset(p, opts)
}

func (c *Converter) convertPreset(p *soundfont.Preset, opts Options) presetResult {
	n := &notes{preset: p.Name}
	cls := Classify(p, opts.Force())
	res := presetResult{
		outcome: PresetOutcome{
			Name:       p.Name,
			Bank:       p.Bank,
			Program:    p.Program,
			Kind:       cls.Kind,
			Reason:     cls.Reason,
			Confidence: cls.Confidence,
			Zones:      len(p.Zones),
		},
		notes: n,
	}
	if cls.Forced {
		n.adjustf(AdjustForcedKind, "", "classified as %s by override", cls.Kind)
	}

	skip := func(err error) presetResult {
		res.outcome.Status = StatusSkipped
		res.outcome.SkipReason = err.Error()
		res.artifacts = nil
		opts.Logger.Warn("preset skipped", "preset", p.Name, "reason", err)
		return res
	}

	lo, hi := c.device.KeySpan()
	variants, err := selectZones(p, cls.Kind, SelectConfig{
		Velocities: opts.Velocities,
		Mode:       opts.VelocityMode,
		DrumMode:   opts.DrumVelocityMode,
		Ceiling:    c.device.ZoneCeiling(),
		SpanLo:     lo,
		SpanHi:     hi,
		DrumBase:   c.device.DrumBaseNote(),
	}, n)
	if err != nil {
		return skip(err)
	}

	midiWriter := NewMIDIWriter()
	var failures []error
	for _, v := range variants {
		out, err := assemble(cls, v, opts, n)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		arts, err := c.render(out)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", v.Name, err))
			continue
		}
		if opts.Audition {
			mid, err := midiWriter.Generate(NewAudition(out, p.Bank, p.Program))
			if err != nil {
				failures = append(failures, fmt.Errorf("%s: %w", v.Name, err))
				continue
			}
			arts = append(arts, Artifact{Path: path.Join("audition", SanitizeName(out.Name)+".mid"), Kind: ArtifactMIDI, Data: mid})
		}
		res.artifacts = append(res.artifacts, arts...)
		res.outcome.Outputs = append(res.outcome.Outputs, EnsurePresetDir(SanitizeName(out.Name)))
		res.outcome.Kept += len(out.Regions)
		opts.Logger.Info("converted preset", "preset", out.Name, "kind", out.Kind, "regions", len(out.Regions))
	}
	if len(res.outcome.Outputs) == 0 {
		return skip(errors.Join(failures...))
	}
	for _, err := range failures {
		n.adjustf(AdjustVariantDropped, "", "%v", err)
	}
	res.outcome.Status = StatusConverted
	return res
}

// render encodes a preset into its patch and sample files
func (c *Converter) render(p *OutputPreset) ([]Artifact, error) {
	dir := EnsurePresetDir(SanitizeName(p.Name))
	var arts []Artifact
	for i := range p.Regions {
		wav, err := c.device.GenerateSample(&p.Regions[i])
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", p.Regions[i].Sample, err)
		}
		arts = append(arts, Artifact{Path: path.Join(dir, p.Regions[i].Sample), Kind: ArtifactAudio, Data: wav})
	}
	patch, err := c.device.GeneratePatch(p)
	if err != nil {
		return nil, fmt.Errorf("failed to generate patch: %w", err)
	}
	return append([]Artifact{{Path: path.Join(dir, "patch.json"), Kind: ArtifactPatch, Data: patch}}, arts...), nil
}

// ConvertFile converts a SoundFont file into preset directories under outDir
func (c *Converter) ConvertFile(ctx context.Context, inputPath, outDir string, opts Options) (*Report, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if opts.Source == "" {
		opts.Source = filepath.Base(inputPath)
	}
	return c.Run(ctx, data, opts, DirWriter(outDir))
}

// DirWriter returns an emit function writing artifacts below root
func DirWriter(root string) func(Artifact) error {
	return func(a Artifact) error {
		target := filepath.Join(root, filepath.FromSlash(a.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.WriteFile(target, a.Data, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		return nil
	}
}

// GetSupportedConversions returns a list of supported conversion paths
func GetSupportedConversions() []string {
	return []string{
		"sf2 -> preset",
		"sf3 -> preset",
	}
}
