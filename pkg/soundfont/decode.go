package soundfont

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-audio/riff"
)

var (
	sfbkID = [4]byte{'s', 'f', 'b', 'k'}
	listID = [4]byte{'L', 'I', 'S', 'T'}
)

// pdta record sizes in bytes
const (
	phdrSize = 38
	bagSize  = 4
	modSize  = 10
	genSize  = 4
	instSize = 22
	shdrSize = 46
)

// chunk is one sub-chunk read fully into memory
type chunk struct {
	id     string
	offset int
	data   []byte
}

// Decode parses an SF2/SF3 container held in memory
func Decode(data []byte) (*Bank, error) {
	if len(data) < 12 {
		return nil, &FormatError{Chunk: "RIFF", Reason: "file too short"}
	}
	p := riff.New(bytes.NewReader(data))
	if err := p.ParseHeaders(); err != nil {
		return nil, &FormatError{Chunk: "RIFF", Reason: err.Error()}
	}
	if p.Format != sfbkID {
		return nil, &FormatError{Chunk: "RIFF", Offset: 8, Reason: fmt.Sprintf("form type %q is not sfbk", p.Format[:])}
	}
	size := int(p.Size) - 4
	if size < 0 || 12+size > len(data) {
		return nil, &FormatError{Chunk: "RIFF", Offset: 4, Reason: fmt.Sprintf("declared size %d exceeds file size %d", p.Size, len(data)-8)}
	}

	lists, err := readChunks(data[12:12+size], 12, true)
	if err != nil {
		return nil, err
	}

	var info, sdta, pdta *chunk
	order := make([]string, 0, 3)
	for i := range lists {
		switch lists[i].id {
		case "INFO":
			info = &lists[i]
		case "sdta":
			sdta = &lists[i]
		case "pdta":
			pdta = &lists[i]
		default:
			continue
		}
		order = append(order, lists[i].id)
	}
	if info == nil || sdta == nil || pdta == nil {
		return nil, &FormatError{Chunk: "RIFF", Reason: fmt.Sprintf("expected INFO, sdta and pdta lists, found %v", order)}
	}
	if strings.Join(order, ",") != "INFO,sdta,pdta" {
		return nil, &FormatError{Chunk: "RIFF", Reason: fmt.Sprintf("lists out of order: %v", order)}
	}

	d := &decoder{bank: &Bank{}}
	if err := d.readInfo(info); err != nil {
		return nil, err
	}
	if err := d.readSampleData(sdta); err != nil {
		return nil, err
	}
	if err := d.readPresetData(pdta); err != nil {
		return nil, err
	}
	return d.bank, nil
}

// DecodeReader reads the whole stream and decodes it
func DecodeReader(r io.Reader) (*Bank, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read soundfont: %w", err)
	}
	return Decode(data)
}

// readChunks walks a run of chunks. When lists is set every chunk must be a
// LIST and its id is replaced by the list type.
func readChunks(body []byte, base int, lists bool) ([]chunk, error) {
	r := bytes.NewReader(body)
	p := riff.New(r)
	var out []chunk
	for r.Len() > 0 {
		offset := base + len(body) - r.Len()
		if r.Len() < 8 {
			return nil, &FormatError{Offset: offset, Reason: "truncated chunk header"}
		}
		ch, err := p.NextChunk()
		if err != nil {
			return nil, &FormatError{Offset: offset, Reason: err.Error()}
		}
		n := ch.Size
		if n > r.Len() {
			// riff pads odd sizes; tolerate a missing final pad byte
			if n-1 != r.Len() {
				return nil, &FormatError{Chunk: string(ch.ID[:]), Offset: offset, Reason: fmt.Sprintf("truncated: declared %d bytes, %d remain", n, r.Len())}
			}
			n = r.Len()
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(ch, buf); err != nil {
			return nil, &FormatError{Chunk: string(ch.ID[:]), Offset: offset, Reason: err.Error()}
		}
		if !lists {
			out = append(out, chunk{id: string(ch.ID[:]), offset: offset, data: buf})
			continue
		}
		if ch.ID != listID {
			continue
		}
		if len(buf) < 4 {
			return nil, &FormatError{Chunk: "LIST", Offset: offset, Reason: "missing list type"}
		}
		out = append(out, chunk{id: string(buf[:4]), offset: offset, data: buf[4:]})
	}
	return out, nil
}

type decoder struct {
	bank    *Bank
	version int
	smpl    []byte
	sm24    []byte
}

func (d *decoder) warnf(format string, args ...any) {
	d.bank.Warnings = append(d.bank.Warnings, fmt.Sprintf(format, args...))
}

func (d *decoder) readInfo(list *chunk) error {
	subs, err := readChunks(list.data, list.offset+12, false)
	if err != nil {
		return err
	}
	info := &d.bank.Info
	for _, c := range subs {
		switch c.id {
		case "ifil":
			if len(c.data) < 4 {
				return &FormatError{Chunk: "ifil", Offset: c.offset, Reason: "version record too short"}
			}
			major := binary.LittleEndian.Uint16(c.data[0:2])
			minor := binary.LittleEndian.Uint16(c.data[2:4])
			d.version = int(major)
			info.Version = fmt.Sprintf("%d.%02d", major, minor)
		case "isng":
			info.Engine = cString(c.data)
		case "INAM":
			info.Name = cString(c.data)
		case "irom":
			info.ROM = cString(c.data)
		case "ICRD":
			info.Date = cString(c.data)
		case "IENG":
			info.Engineers = cString(c.data)
		case "IPRD":
			info.Product = cString(c.data)
		case "ICOP":
			info.Copyright = cString(c.data)
		case "ICMT":
			info.Comment = cString(c.data)
		case "ISFT":
			info.Software = cString(c.data)
		}
	}
	if info.Version == "" {
		return &FormatError{Chunk: "INFO", Offset: list.offset, Reason: "missing ifil version"}
	}
	if d.version < 2 || d.version > 3 {
		return &FormatError{Chunk: "ifil", Reason: fmt.Sprintf("unsupported version %s", info.Version)}
	}
	return nil
}

func (d *decoder) readSampleData(list *chunk) error {
	subs, err := readChunks(list.data, list.offset+12, false)
	if err != nil {
		return err
	}
	for _, c := range subs {
		switch c.id {
		case "smpl":
			d.smpl = c.data
		case "sm24":
			d.sm24 = c.data
		}
	}
	if d.smpl == nil {
		return &FormatError{Chunk: "sdta", Offset: list.offset, Reason: "missing smpl chunk"}
	}
	if d.sm24 != nil && len(d.sm24) < len(d.smpl)/2 {
		d.warnf("sm24 chunk ignored: %d bytes for %d sample points", len(d.sm24), len(d.smpl)/2)
		d.sm24 = nil
	}
	return nil
}

type rawPhdr struct {
	Name       [20]byte
	Preset     uint16
	Bank       uint16
	Bag        uint16
	Library    uint32
	Genre      uint32
	Morphology uint32
}

type rawInst struct {
	Name [20]byte
	Bag  uint16
}

type rawBag struct {
	Gen uint16
	Mod uint16
}

type rawGen struct {
	Oper   uint16
	Amount uint16
}

type rawShdr struct {
	Name            [20]byte
	Start           uint32
	End             uint32
	StartLoop       uint32
	EndLoop         uint32
	SampleRate      uint32
	OriginalPitch   uint8
	PitchCorrection int8
	Link            uint16
	Type            uint16
}

// hydra holds the nine pdta tables
type hydra struct {
	phdr []rawPhdr
	pbag []rawBag
	pmod []Modulator
	pgen []rawGen
	inst []rawInst
	ibag []rawBag
	imod []Modulator
	igen []rawGen
	shdr []rawShdr
}

func (d *decoder) readPresetData(list *chunk) error {
	subs, err := readChunks(list.data, list.offset+12, false)
	if err != nil {
		return err
	}
	byID := make(map[string]chunk, len(subs))
	for _, c := range subs {
		byID[c.id] = c
	}

	var h hydra
	tables := []struct {
		id   string
		size int
		dst  func(n int) any
	}{
		{"phdr", phdrSize, func(n int) any { h.phdr = make([]rawPhdr, n); return h.phdr }},
		{"pbag", bagSize, func(n int) any { h.pbag = make([]rawBag, n); return h.pbag }},
		{"pmod", modSize, func(n int) any { h.pmod = make([]Modulator, n); return h.pmod }},
		{"pgen", genSize, func(n int) any { h.pgen = make([]rawGen, n); return h.pgen }},
		{"inst", instSize, func(n int) any { h.inst = make([]rawInst, n); return h.inst }},
		{"ibag", bagSize, func(n int) any { h.ibag = make([]rawBag, n); return h.ibag }},
		{"imod", modSize, func(n int) any { h.imod = make([]Modulator, n); return h.imod }},
		{"igen", genSize, func(n int) any { h.igen = make([]rawGen, n); return h.igen }},
		{"shdr", shdrSize, func(n int) any { h.shdr = make([]rawShdr, n); return h.shdr }},
	}
	for _, t := range tables {
		c, ok := byID[t.id]
		if !ok {
			return &FormatError{Chunk: "pdta", Offset: list.offset, Reason: "missing " + t.id + " chunk"}
		}
		if len(c.data)%t.size != 0 {
			return &FormatError{Chunk: t.id, Offset: c.offset, Reason: fmt.Sprintf("size %d is not a multiple of %d", len(c.data), t.size)}
		}
		dst := t.dst(len(c.data) / t.size)
		if err := binary.Read(bytes.NewReader(c.data), binary.LittleEndian, dst); err != nil {
			return &FormatError{Chunk: t.id, Offset: c.offset, Reason: err.Error()}
		}
	}

	if len(h.phdr) < 2 || len(h.inst) < 2 || len(h.shdr) < 1 {
		return &FormatError{Chunk: "pdta", Offset: list.offset, Reason: "missing terminal records"}
	}
	if err := checkBags("phdr", bagIndexes(h.phdr), len(h.pbag)); err != nil {
		return err
	}
	if err := checkBags("inst", instBagIndexes(h.inst), len(h.ibag)); err != nil {
		return err
	}
	if err := checkBagRefs("pbag", h.pbag, len(h.pgen), len(h.pmod)); err != nil {
		return err
	}
	if err := checkBagRefs("ibag", h.ibag, len(h.igen), len(h.imod)); err != nil {
		return err
	}

	d.decodeSamples(h.shdr)
	d.resolve(&h)
	return nil
}

func bagIndexes(phdr []rawPhdr) []int {
	out := make([]int, len(phdr))
	for i, p := range phdr {
		out[i] = int(p.Bag)
	}
	return out
}

func instBagIndexes(inst []rawInst) []int {
	out := make([]int, len(inst))
	for i, in := range inst {
		out[i] = int(in.Bag)
	}
	return out
}

func checkBags(id string, idx []int, bags int) error {
	for i := range idx {
		if idx[i] > bags || (i > 0 && idx[i] < idx[i-1]) {
			return &FormatError{Chunk: id, Reason: fmt.Sprintf("record %d has invalid bag index %d", i, idx[i])}
		}
	}
	return nil
}

func checkBagRefs(id string, bags []rawBag, gens, mods int) error {
	for i, b := range bags {
		if int(b.Gen) > gens || int(b.Mod) > mods {
			return &FormatError{Chunk: id, Reason: fmt.Sprintf("bag %d references generator %d/%d, modulator %d/%d", i, b.Gen, gens, b.Mod, mods)}
		}
		if i > 0 && (b.Gen < bags[i-1].Gen || b.Mod < bags[i-1].Mod) {
			return &FormatError{Chunk: id, Reason: fmt.Sprintf("bag %d indexes decrease", i)}
		}
	}
	return nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

// IsFormatError reports whether err is a structural decoding failure
func IsFormatError(err error) bool {
	return errors.Is(err, ErrFormat)
}
