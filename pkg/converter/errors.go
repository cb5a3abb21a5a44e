package converter

import (
	"context"
	"errors"
	"fmt"

	"github.com/james-see/sf2opxy/pkg/soundfont"
)

var (
	// ErrPresetSkipped marks a preset that produced no output
	ErrPresetSkipped = errors.New("preset skipped")
	// ErrResampleOutOfRange marks a zone whose audio cannot be resampled
	ErrResampleOutOfRange = errors.New("resample out of range")
	// ErrInvalidOptions is wrapped by every option validation failure
	ErrInvalidOptions = errors.New("invalid options")
	// ErrNoDevice is returned when a converter has no device configured
	ErrNoDevice = errors.New("no device configured")
)

// FailureKind classifies a fatal run failure
type FailureKind string

const (
	FailureFormat    FailureKind = "format"
	FailureOptions   FailureKind = "options"
	FailureCancelled FailureKind = "cancelled"
	FailureInternal  FailureKind = "internal"
)

// Failure is the structured error returned when a run aborts
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Detail  string      `json:"detail,omitempty"`
	Err     error       `json:"-"`
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", f.Kind, f.Message, f.Detail)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// newFailure wraps err into a Failure of the matching kind
func newFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	switch {
	case errors.Is(err, soundfont.ErrFormat):
		var fe *soundfont.FormatError
		detail := ""
		if errors.As(err, &fe) {
			detail = fmt.Sprintf("chunk %q at offset %d", fe.Chunk, fe.Offset)
		}
		return &Failure{Kind: FailureFormat, Message: err.Error(), Detail: detail, Err: err}
	case errors.Is(err, ErrInvalidOptions):
		return &Failure{Kind: FailureOptions, Message: err.Error(), Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: FailureCancelled, Message: "conversion cancelled", Detail: err.Error(), Err: err}
	default:
		return &Failure{Kind: FailureInternal, Message: err.Error(), Err: err}
	}
}

// AdjustmentKind names an informational change made during conversion
type AdjustmentKind string

const (
	AdjustClampedValue     AdjustmentKind = "clamped_value"
	AdjustVelocityFallback AdjustmentKind = "velocity_fallback"
	AdjustFakeLoop         AdjustmentKind = "fake_loop"
	AdjustInvalidLoop      AdjustmentKind = "invalid_loop"
	AdjustZeroCrossing     AdjustmentKind = "zero_crossing"
	AdjustLoopOffset       AdjustmentKind = "loop_offset"
	AdjustDownselect       AdjustmentKind = "downselect"
	AdjustMixedEnvelope    AdjustmentKind = "mixed_envelope"
	AdjustMixedFX          AdjustmentKind = "mixed_fx_send"
	AdjustChokeGroups      AdjustmentKind = "multiple_exclusive_classes"
	AdjustForcedKind       AdjustmentKind = "classification_override"
	AdjustDrumChunked      AdjustmentKind = "drum_chunked"
	AdjustVariantDropped   AdjustmentKind = "variant_dropped"
)

// Adjustment records a value changed to fit the device
type Adjustment struct {
	Preset  string         `json:"preset"`
	Sample  string         `json:"sample,omitempty"`
	Kind    AdjustmentKind `json:"kind"`
	Message string         `json:"message"`
}

// ZoneEvent records a zone left out of the output
type ZoneEvent struct {
	Preset   string `json:"preset"`
	Sample   string `json:"sample,omitempty"`
	KeyLo    int    `json:"keyLo"`
	KeyHi    int    `json:"keyHi"`
	VelLo    int    `json:"velLo"`
	VelHi    int    `json:"velHi"`
	RootKey  int    `json:"rootKey"`
	Reason   string `json:"reason"`
	Velocity int    `json:"velocity,omitempty"`
}

// notes collects the events of one preset; each worker owns its own
type notes struct {
	preset    string
	adjust    []Adjustment
	discarded []ZoneEvent
}

func (n *notes) adjustf(kind AdjustmentKind, sample string, format string, args ...any) {
	n.adjust = append(n.adjust, Adjustment{
		Preset:  n.preset,
		Sample:  sample,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	})
}

func (n *notes) discard(z *soundfont.Zone, reason string, velocity int) {
	ev := ZoneEvent{
		Preset:   n.preset,
		KeyLo:    z.KeyLo,
		KeyHi:    z.KeyHi,
		VelLo:    z.VelLo,
		VelHi:    z.VelHi,
		RootKey:  z.RootKey(),
		Reason:   reason,
		Velocity: velocity,
	}
	if z.Sample != nil {
		ev.Sample = z.Sample.Name
	}
	n.discarded = append(n.discarded, ev)
}
