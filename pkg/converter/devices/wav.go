package devices

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"

	"github.com/james-see/sf2opxy/pkg/converter"
)

// ErrNotWav is returned when data is not a readable WAV file
var ErrNotWav = errors.New("not a wav file")

// EncodeWAV writes a PCM buffer as a WAV file
func EncodeWAV(buf *audio.IntBuffer) ([]byte, error) {
	if buf == nil || buf.Format == nil {
		return nil, errors.New("missing audio format")
	}
	if buf.NumFrames() == 0 {
		return nil, errors.New("empty audio buffer")
	}
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = converter.DefaultBitDepth
	}
	ws := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(ws, buf.Format.SampleRate, depth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}
	return io.ReadAll(ws.BytesReader())
}

// DecodeWAV reads a WAV file fully into memory
func DecodeWAV(data []byte) (*audio.IntBuffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, ErrNotWav
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav: %w", err)
	}
	if buf.SourceBitDepth == 0 {
		buf.SourceBitDepth = int(dec.BitDepth)
	}
	return buf, nil
}

// GenerateSample encodes a region's audio as a WAV file
func (d *OPXY) GenerateSample(r *converter.OutputRegion) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil region")
	}
	return EncodeWAV(r.Audio)
}

// OffsetVariant is a copy of a patch with every enabled loop end moved
type OffsetVariant struct {
	Offset int
	Label  string
	Name   string
	Patch  []byte
}

// OffsetLabel formats an offset as it appears in variant names
func OffsetLabel(offset int) string {
	if offset == 0 {
		return "0"
	}
	return fmt.Sprintf("%+d", offset)
}

// OffsetVariants derives one patch per offset from an existing patch.json.
// base is the offset already applied to the patch; each variant moves loop
// ends by offset-base. Unknown fields are preserved.
func OffsetVariants(patch []byte, offsets []int, base int) ([]OffsetVariant, error) {
	var out []OffsetVariant
	for _, offset := range offsets {
		doc, err := decodeDoc(patch)
		if err != nil {
			return nil, err
		}
		name, _ := doc["name"].(string)
		regions, _ := doc["regions"].([]any)
		delta := offset - base
		for _, raw := range regions {
			r, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if enabled, _ := r["loop.enabled"].(bool); !enabled {
				continue
			}
			start, ok1 := intField(r, "loop.start")
			end, ok2 := intField(r, "loop.end")
			frames, ok3 := intField(r, "framecount")
			if !ok1 || !ok2 || !ok3 || end <= start || frames <= 0 {
				continue
			}
			r["loop.end"] = converter.ApplyLoopEndOffset(start, end, frames, delta)
		}

		label := OffsetLabel(offset)
		v := OffsetVariant{Offset: offset, Label: label, Name: fmt.Sprintf("%s offset %s", name, label)}
		doc["name"] = v.Name
		v.Patch, err = json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode variant: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeDoc(data []byte) (map[string]any, error) {
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse patch: %w", err)
	}
	return doc, nil
}

func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return int(i), true
	case float64:
		return int(v), true
	}
	return 0, false
}
