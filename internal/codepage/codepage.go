// Package codepage converts archive entry names between the legacy
// single-byte encoding stored in WAD tables and Go strings.
//
// Conversion happens only at the format boundary. Everything above this
// package works with UTF-8 strings.
package codepage

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// DefaultName is the code page used when none is configured.
const DefaultName = "windows-1252"

// ErrUnrepresentable is returned when a name contains characters that the
// code page cannot encode.
var ErrUnrepresentable = errors.New("codepage: name not representable")

// Codec encodes and decodes names with one single-byte code page.
type Codec struct {
	name string
	cm   *charmap.Charmap
}

// Default returns the Windows-1252 codec.
func Default() *Codec {
	return &Codec{name: DefaultName, cm: charmap.Windows1252}
}

// Lookup returns the codec for an IANA code page name such as
// "windows-1252", "ISO-8859-1" or "IBM437". Only single-byte code pages
// are accepted.
func Lookup(name string) (*Codec, error) {
	if name == "" {
		return Default(), nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("codepage %q: %w", name, err)
	}
	cm, ok := enc.(*charmap.Charmap)
	if !ok || cm == nil {
		return nil, fmt.Errorf("codepage %q: not a single-byte code page", name)
	}
	return &Codec{name: strings.ToLower(name), cm: cm}, nil
}

// Name returns the configured code page name.
func (c *Codec) Name() string {
	return c.name
}

// DecodeName converts a raw archive name to a string. Every byte maps to
// some character, so decoding never fails.
func (c *Codec) DecodeName(raw []byte) string {
	if isASCII(raw) {
		return string(raw)
	}
	out, err := c.cm.NewDecoder().Bytes(raw)
	if err != nil {
		// Single-byte decoders only fail on internal errors; fall back to
		// replacing every byte.
		return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	}
	return string(out)
}

// EncodeName converts name to the code page. Names that are not valid
// UTF-8 or that contain characters outside the code page return
// ErrUnrepresentable. The result is not truncated.
func (c *Codec) EncodeName(name string) ([]byte, error) {
	if isASCII([]byte(name)) {
		return []byte(name), nil
	}
	if !utf8.ValidString(name) {
		return nil, fmt.Errorf("%w: invalid UTF-8 in %q", ErrUnrepresentable, name)
	}
	out, err := c.cm.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return nil, fmt.Errorf("%w in %s: %q", ErrUnrepresentable, c.name, name)
	}
	return out, nil
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
