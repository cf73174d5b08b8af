package protocol

import (
	"fmt"
	"sort"

	cbor "github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"
)

// Codec marshals frames for one link. The dialing side picks the codec and
// announces it in the handshake.
type Codec interface {
	Name() string
	// Binary reports whether encoded frames travel as binary websocket
	// messages rather than text.
	Binary() bool
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

// JSON returns the JSON codec.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Binary() bool                       { return false }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic CBOR codec (RFC 8949 core deterministic encoding).
func CBOR() (Codec, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (cborCodec) Name() string                         { return "cbor" }
func (cborCodec) Binary() bool                         { return true }
func (c cborCodec) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

// Registry maps codec names to codecs.
type Registry struct{ byName map[string]Codec }

// NewRegistry returns a registry holding the JSON and CBOR codecs.
func NewRegistry() (*Registry, error) {
	r := &Registry{byName: make(map[string]Codec)}
	r.Register(JSON())
	c, err := CBOR()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cbor codec: %w", err)
	}
	r.Register(c)
	return r, nil
}

// Register adds a codec.
func (r *Registry) Register(c Codec) { r.byName[c.Name()] = c }

// Get returns a codec by name, or nil.
func (r *Registry) Get(name string) Codec { return r.byName[name] }

// Names lists registered codec names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Encode validates and marshals a frame.
func Encode(c Codec, f *Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return c.Marshal(f)
}

// Decode unmarshals and validates a frame.
func Decode(c Codec, data []byte) (*Frame, error) {
	var f Frame
	if err := c.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", c.Name(), err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}
