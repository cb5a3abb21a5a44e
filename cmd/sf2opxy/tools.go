package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/james-see/sf2opxy/pkg/converter"
	"github.com/james-see/sf2opxy/pkg/converter/devices"
	"github.com/james-see/sf2opxy/pkg/preview"
	"github.com/james-see/sf2opxy/pkg/soundfont"
)

var (
	previewOffsets []int
	variantOffsets []int
	iterations     int
	tailSeconds    float64
	sampleName     string
	baseOffset     int
	ladder         []int
	render         bool
	renderRate     int
)

// defaultCalibrationDir is used when calibrate gets no --output
const defaultCalibrationDir = "calibration"

var previewCmd = &cobra.Command{
	Use:   "preview <preset-dir>",
	Short: "Render a looped sample at several loop-end offsets",
	Long: `Renders one looped region of a converted preset with its loop repeated,
once per loop-end offset, so loop seams can be compared by ear.
Writes <sample>_loop_end_<offset>.wav files and manifest.json.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

var variantsCmd = &cobra.Command{
	Use:   "variants <preset-dir>",
	Short: "Copy a preset with every loop end moved by each offset",
	Args:  cobra.ExactArgs(1),
	RunE:  runVariants,
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Generate attack and release calibration presets",
	Long: `Writes one preset per envelope value holding a 441 Hz sine, plus a
manifest listing the seconds the current calibration predicts for each.
Load the presets on the device and measure them to refit the curves.`,
	Args: cobra.NoArgs,
	RunE: runCalibrate,
}

var auditionCmd = &cobra.Command{
	Use:   "audition <input.sf2>",
	Short: "Write test MIDI files for source presets",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudition,
}

func init() {
	previewCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: <preset-dir>/loop_preview)")
	previewCmd.Flags().IntSliceVar(&previewOffsets, "offsets", preview.DefaultOffsets, "Loop-end offsets in frames")
	previewCmd.Flags().IntVar(&iterations, "iterations", preview.DefaultIterations, "Loop repetitions")
	previewCmd.Flags().Float64Var(&tailSeconds, "tail", preview.DefaultTailSeconds, "Seconds of audio kept after the loop")
	previewCmd.Flags().StringVar(&sampleName, "sample", "", "Sample file to preview (default: region nearest middle C)")

	variantsCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Parent directory for the variants (default: next to the preset)")
	variantsCmd.Flags().IntSliceVar(&variantOffsets, "offsets", []int{-1, 1}, "Loop-end offsets in frames")
	variantsCmd.Flags().IntVar(&baseOffset, "base", 0, "Offset already applied to the preset")

	calibrateCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: calibration)")
	calibrateCmd.Flags().IntSliceVar(&ladder, "values", preview.DefaultLadder, "Envelope values to generate")

	auditionCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: <input>_audition)")
	auditionCmd.Flags().StringArrayVarP(&presetNames, "preset", "p", nil, "Audition only this preset (repeatable)")
	auditionCmd.Flags().BoolVar(&render, "render", false, "Also render each audition through the source bank")
	auditionCmd.Flags().IntVar(&renderRate, "rate", 44100, "Sample rate of rendered audio")
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func writeArtifacts(dir string, arts []converter.Artifact) error {
	write := converter.DirWriter(dir)
	for _, a := range arts {
		if err := write(a); err != nil {
			return err
		}
	}
	return nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	dir := args[0]
	out := outputDir
	if out == "" {
		out = filepath.Join(dir, "loop_preview")
	}
	m, arts, err := preview.LoopPreviews(dir, preview.LoopOptions{
		Offsets:     previewOffsets,
		Iterations:  iterations,
		TailSeconds: tailSeconds,
		Sample:      sampleName,
	})
	if err != nil {
		return err
	}
	if err := writeArtifacts(out, arts); err != nil {
		return err
	}
	fmt.Printf("Previewing %s (loop %d-%d of %d frames)\n", m.Sample, m.LoopStart, m.LoopEnd, m.Framecount)
	for _, o := range m.Outputs {
		fmt.Printf("  %+d -> loop end %d: %s\n", o.Offset, o.LoopEnd, filepath.Join(out, o.File))
	}
	return nil
}

func runVariants(cmd *cobra.Command, args []string) error {
	dir := filepath.Clean(args[0])
	patch, err := os.ReadFile(filepath.Join(dir, "patch.json"))
	if err != nil {
		return fmt.Errorf("failed to read patch: %w", err)
	}
	variants, err := devices.OffsetVariants(patch, variantOffsets, baseOffset)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	parent := outputDir
	if parent == "" {
		parent = filepath.Dir(dir)
	}

	for _, v := range variants {
		target := converter.EnsurePresetDir(converter.SanitizeName(v.Name))
		arts := []converter.Artifact{{Path: target + "/patch.json", Kind: converter.ArtifactPatch, Data: v.Patch}}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".wav" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return err
			}
			arts = append(arts, converter.Artifact{Path: target + "/" + e.Name(), Kind: converter.ArtifactAudio, Data: data})
		}
		if err := writeArtifacts(parent, arts); err != nil {
			return err
		}
		fmt.Printf("Wrote %s (offset %s)\n", filepath.Join(parent, target), v.Label)
	}
	return nil
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	device, err := getDevice()
	if err != nil {
		return err
	}
	out := outputDir
	if out == "" {
		out = defaultCalibrationDir
	}
	m, arts, err := preview.Calibration(device, ladder)
	if err != nil {
		return err
	}
	if err := writeArtifacts(out, arts); err != nil {
		return err
	}
	fmt.Printf("Wrote %d calibration presets to %s\n", len(m.Presets), out)
	fmt.Printf("Measurement sheet: %s\n", filepath.Join(out, preview.CalibrationManifestText))
	return nil
}

func runAudition(cmd *cobra.Command, args []string) error {
	input := args[0]
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	bank, err := soundfont.Decode(data)
	if err != nil {
		return err
	}
	out := outputDir
	if out == "" {
		out = strings.TrimSuffix(input, filepath.Ext(input)) + "_audition"
	}

	presets := make([]*soundfont.Preset, 0, len(bank.Presets))
	if len(presetNames) == 0 {
		for i := range bank.Presets {
			presets = append(presets, &bank.Presets[i])
		}
	}
	for _, name := range presetNames {
		p, ok := bank.FindPreset(name)
		if !ok {
			return fmt.Errorf("preset %q not found", name)
		}
		presets = append(presets, p)
	}

	w := converter.NewMIDIWriter()
	var arts []converter.Artifact
	for _, p := range presets {
		if len(p.Zones) == 0 {
			continue
		}
		a := converter.SourceAudition(p, converter.ForceNone)
		mid, err := w.Generate(a)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		name := converter.SanitizeName(p.Name)
		arts = append(arts, converter.Artifact{Path: name + ".mid", Kind: converter.ArtifactMIDI, Data: mid})
		if !render {
			continue
		}
		buf, err := preview.RenderReference(data, mid, renderRate, w.Duration(a))
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		wav, err := devices.EncodeWAV(buf)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		arts = append(arts, converter.Artifact{Path: name + "_reference.wav", Kind: converter.ArtifactAudio, Data: wav})
	}
	if err := writeArtifacts(out, arts); err != nil {
		return err
	}
	fmt.Printf("Wrote %d files for %d presets to %s\n", len(arts), len(presets), out)
	return nil
}
