// Package main is the entry point for the sf2opxy CLI
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/james-see/sf2opxy/pkg/api"
	"github.com/james-see/sf2opxy/pkg/converter"
	"github.com/james-see/sf2opxy/pkg/converter/devices"
	"github.com/james-see/sf2opxy/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	outputDir   string
	deviceName  string
	optionsFile string
	verbosity   int
	serverPort  int
	jsonOutput  bool

	velocities       []int
	velocityMode     string
	drumVelocityMode string
	resampleRate     int
	noResample       bool
	bitDepth         int
	zeroCrossing     bool
	loopEndOffset    int
	forceDrum        bool
	forceInstrument  bool
	playmode         string
	loopOnRelease    string
	presetNames      []string
	audition         bool
	workers          int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sf2opxy",
	Short: "Convert SoundFont banks into OP-XY presets",
	Long: `sf2opxy converts SoundFont 2 (.sf2) and SoundFont 3 (.sf3) banks into
Teenage Engineering OP-XY multisample and drum presets.

Every source preset becomes one or more .preset directories holding a
patch.json and the WAV samples it references, plus a conversion log.

Examples:
  sf2opxy convert GeneralUser.sf2 -o presets
  sf2opxy convert strings.sf2 --velocities 40,100 --velocity-mode split
  sf2opxy inspect GeneralUser.sf2
  sf2opxy preview presets/Strings.preset --offsets -2,-1,0,1,2
  sf2opxy variants presets/Strings.preset --offsets -1,1
  sf2opxy calibrate -o calibration
  sf2opxy audition GeneralUser.sf2 -p "Grand Piano" --render
  sf2opxy tui
  sf2opxy serve --port 8080`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var convertCmd = &cobra.Command{
	Use:   "convert <input.sf2>",
	Short: "Convert a SoundFont into preset directories",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <input.sf2>",
	Short: "List presets and how they would be classified",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", devices.OPXYDeviceID, "Target device (opxy)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Log conversion details to stderr (repeat for debug)")

	// Convert command
	f := convertCmd.Flags()
	f.StringVarP(&outputDir, "output", "o", "", "Output directory (default: <input>_opxy)")
	f.StringVar(&optionsFile, "options", "", "JSON options file applied before flags")
	f.IntSliceVar(&velocities, "velocities", []int{converter.DefaultVelocity}, "Velocities used to pick zones")
	f.StringVar(&velocityMode, "velocity-mode", string(converter.VelocityKeep), "keep: one preset; split: one preset per velocity")
	f.StringVar(&drumVelocityMode, "drum-velocity-mode", string(converter.DrumClosest), "closest or strict zone matching for drum kits")
	f.IntVar(&resampleRate, "resample-rate", converter.DefaultResampleRate, "Output sample rate")
	f.BoolVar(&noResample, "no-resample", false, "Keep source sample rates")
	f.IntVar(&bitDepth, "bit-depth", converter.DefaultBitDepth, "Output bit depth (16 or 24)")
	f.BoolVar(&zeroCrossing, "zero-crossing", false, "Snap loop points to zero crossings")
	f.IntVar(&loopEndOffset, "loop-end-offset", 0, "Frames added to every loop end")
	f.BoolVar(&forceDrum, "force-drum", false, "Treat every preset as a drum kit")
	f.BoolVar(&forceInstrument, "force-instrument", false, "Treat every preset as an instrument")
	f.StringVar(&playmode, "playmode", string(converter.PlaymodeAuto), "Instrument playmode: auto, poly, mono or legato")
	f.StringVar(&loopOnRelease, "loop-on-release", string(converter.ReleaseAuto), "auto, on or off")
	f.StringArrayVarP(&presetNames, "preset", "p", nil, "Convert only this preset (repeatable)")
	f.BoolVar(&audition, "audition", false, "Write an audition MIDI file per preset")
	f.IntVarP(&workers, "workers", "j", 0, "Presets converted in parallel (default: CPU count)")
	convertCmd.MarkFlagsMutuallyExclusive("force-drum", "force-instrument")

	// Inspect command
	inspectCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	inspectCmd.Flags().BoolVar(&forceDrum, "force-drum", false, "Classify every preset as a drum kit")
	inspectCmd.Flags().BoolVar(&forceInstrument, "force-instrument", false, "Classify every preset as an instrument")
	inspectCmd.MarkFlagsMutuallyExclusive("force-drum", "force-instrument")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Server port")

	// Add commands
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(variantsCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(auditionCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

func getDevice() (converter.Device, error) {
	switch strings.ToLower(deviceName) {
	case devices.OPXYDeviceID, "op-xy":
		return devices.NewOPXY(), nil
	default:
		return nil, fmt.Errorf("unknown device %q", deviceName)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func defaultOutputDir(input string) string {
	if outputDir != "" {
		return outputDir
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_opxy"
}

// buildOptions layers defaults, the options file and explicitly set flags
func buildOptions(cmd *cobra.Command) (converter.Options, error) {
	opts := converter.DefaultOptions()
	if optionsFile != "" {
		var err error
		if opts, err = converter.LoadOptionsFile(optionsFile, opts); err != nil {
			return opts, err
		}
	}
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("velocities", func() { opts.Velocities = velocities })
	set("velocity-mode", func() { opts.VelocityMode = converter.VelocityMode(velocityMode) })
	set("drum-velocity-mode", func() { opts.DrumVelocityMode = converter.DrumVelocityMode(drumVelocityMode) })
	set("resample-rate", func() { opts.ResampleRate = resampleRate })
	set("no-resample", func() { opts.NoResample = noResample })
	set("bit-depth", func() { opts.BitDepth = bitDepth })
	set("zero-crossing", func() { opts.ZeroCrossing = zeroCrossing })
	set("loop-end-offset", func() { opts.LoopEndOffset = loopEndOffset })
	set("force-drum", func() { opts.ForceDrum = forceDrum })
	set("force-instrument", func() { opts.ForceInstrument = forceInstrument })
	set("playmode", func() { opts.InstrumentPlaymode = converter.Playmode(playmode) })
	set("loop-on-release", func() { opts.LoopOnRelease = converter.LoopOnRelease(loopOnRelease) })
	set("preset", func() { opts.Presets = presetNames })
	set("audition", func() { opts.Audition = audition })
	set("workers", func() { opts.Workers = workers })
	opts.Logger = newLogger()
	return opts, opts.Validate()
}

func runConvert(cmd *cobra.Command, args []string) error {
	input := args[0]
	if !converter.DetectFormat(input) {
		return fmt.Errorf("%s: expected a .sf2 or .sf3 file", input)
	}
	device, err := getDevice()
	if err != nil {
		return err
	}
	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}
	out := defaultOutputDir(input)
	opts.Progress = func(current, total int, name string) {
		fmt.Printf("[%d/%d] %s\n", current, total, name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Converting %s -> %s\n", input, out)
	report, err := converter.New(device).ConvertFile(ctx, input, out, opts)
	if err != nil {
		var f *converter.Failure
		if errors.As(err, &f) {
			return fmt.Errorf("conversion failed: %s", f.Error())
		}
		return err
	}
	printSummary(report, out)
	return nil
}

func printSummary(report *converter.Report, out string) {
	fmt.Printf("Converted %d of %d presets into %s\n", report.Converted(), len(report.Presets), out)
	for _, p := range report.Presets {
		if p.Status == converter.StatusSkipped {
			fmt.Printf("  skipped %s: %s\n", p.Name, p.SkipReason)
		}
	}
	if n := len(report.Adjustments) + len(report.Discarded); n > 0 {
		fmt.Printf("%d notes recorded in %s\n", n, filepath.Join(out, converter.ReportText))
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	force := converter.Options{ForceDrum: forceDrum, ForceInstrument: forceInstrument}.Force()
	in, err := converter.Inspect(data, force)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(in)
	}
	fmt.Print(in.Text())
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	opts := converter.DefaultOptions()
	opts.Logger = slog.New(slog.DiscardHandler)
	return tui.Run(opts)
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Printf("Starting API server on port %d...\n", serverPort)
	return api.StartServer(serverPort)
}
