package dimmer

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Snapshot format versions. Every version up to LatestFormat can be read.
const (
	// FormatCBOR is a plain CBOR body.
	FormatCBOR = 1
	// FormatCBORZstd is a CBOR body compressed with zstd.
	FormatCBORZstd = 2

	LatestFormat = FormatCBORZstd
)

const (
	snapshotMagic = "PLCS"
	headerLen     = len(snapshotMagic) + 2

	// MaxSnapshotSize caps the decoded body of a snapshot blob.
	MaxSnapshotSize = 64 << 20
)

type scope byte

const (
	scopeRegistry scope = 1
	scopeEntity   scope = 2
)

func (s scope) String() string {
	switch s {
	case scopeRegistry:
		return "registry"
	case scopeEntity:
		return "entity"
	default:
		return fmt.Sprintf("scope(%d)", byte(s))
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("dimmer: CBOR encoder initialization failed: " + err.Error())
	}

	// Cue metadata decodes into map[string]any, never map[any]any.
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("dimmer: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("dimmer: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxSnapshotSize))
	if err != nil {
		panic("dimmer: zstd decoder initialization failed: " + err.Error())
	}
}

// Codec writes snapshot blobs in one configured format version.
// Blobs carry a short header: the magic "PLCS", the format version and
// whether the body holds a whole registry or a single entity.
type Codec struct {
	version byte
}

// NewCodec returns a codec that writes the given format version.
func NewCodec(version int) (*Codec, error) {
	if version < FormatCBOR || version > LatestFormat {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, version)
	}
	return &Codec{version: byte(version)}, nil
}

// DefaultCodec writes LatestFormat.
func DefaultCodec() *Codec {
	return &Codec{version: LatestFormat}
}

// Version returns the format version this codec writes.
func (c *Codec) Version() int {
	return int(c.version)
}

func (c *Codec) encode(s scope, v any) ([]byte, error) {
	body, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s snapshot: %w", s, err)
	}
	if c.version == FormatCBORZstd {
		body = zstdEncoder.EncodeAll(body, make([]byte, 0, len(body)))
	}

	out := make([]byte, 0, headerLen+len(body))
	out = append(out, snapshotMagic...)
	out = append(out, c.version, byte(s))
	return append(out, body...), nil
}

// decode reads any supported version regardless of the version c writes.
func (c *Codec) decode(data []byte, s scope, v any) error {
	if len(data) < headerLen || !bytes.Equal(data[:len(snapshotMagic)], []byte(snapshotMagic)) {
		return deserializationErr("missing snapshot header", nil)
	}
	version := data[len(snapshotMagic)]
	got := scope(data[len(snapshotMagic)+1])
	if got != s {
		return deserializationErr(fmt.Sprintf("expected %s snapshot, got %s", s, got), nil)
	}

	body := data[headerLen:]
	if len(body) > MaxSnapshotSize {
		return deserializationErr(fmt.Sprintf("body of %d bytes exceeds %d", len(body), MaxSnapshotSize), nil)
	}
	switch version {
	case FormatCBOR:
	case FormatCBORZstd:
		var err error
		body, err = zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return deserializationErr("decompressing body", err)
		}
	default:
		return deserializationErr(fmt.Sprintf("format version %d", version), ErrUnsupportedFormat)
	}

	if err := decMode.Unmarshal(body, v); err != nil {
		return deserializationErr("decoding body", err)
	}
	return nil
}

// entityDoc is the serialized form of one group or cue.
type entityDoc struct {
	ID        string           `cbor:"id"`
	Name      string           `cbor:"name,omitempty"`
	Level     float64          `cbor:"level"`
	Channels  map[int]float64  `cbor:"channels,omitempty"`
	Nested    map[string]uint8 `cbor:"nested,omitempty"`
	KeepZeros bool             `cbor:"keep_zeros,omitempty"`
	Meta      map[string]any   `cbor:"meta,omitempty"`
}

type registryDoc struct {
	Kind     Kind        `cbor:"kind"`
	Entities []entityDoc `cbor:"entities"`
}

type entityEnvelope struct {
	Kind   Kind      `cbor:"kind"`
	Entity entityDoc `cbor:"entity"`
}

// validate checks everything the typed setters would check.
func (d *entityDoc) validate() error {
	if d.ID == "" {
		return deserializationErr("entity without id", nil)
	}
	if err := ValidateLevel(d.Level); err != nil {
		return deserializationErr("entity "+d.ID, err)
	}
	for ch, v := range d.Channels {
		if err := ValidateLevel(v); err != nil {
			return deserializationErr(fmt.Sprintf("entity %s channel %d", d.ID, ch), err)
		}
	}
	for name, raw := range d.Meta {
		v, err := normalizeAttr(name, raw)
		if err != nil {
			return deserializationErr("entity "+d.ID, err)
		}
		d.Meta[name] = v
	}
	return nil
}

// fill copies doc state into g.
func (d *entityDoc) fill(g *DimmerGroup) {
	g.Name = d.Name
	g.level = d.Level
	for ch, v := range d.Channels {
		g.channels[ch] = v
	}
	for ref, v := range d.Nested {
		g.nested[ref] = v
	}
}
