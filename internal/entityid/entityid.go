// Package entityid parses and formats the fixed-width catalog entity
// identifier.
//
// An id is eight characters wide and split, left to right, into gender (1),
// class (2), version (1), variant (3), and awakening tier (1). Every field is
// validated against its own alphabet; malformed input is rejected rather than
// padded or truncated.
package entityid

import (
	"fmt"
	"strings"

	"assetsync/internal/services"
)

// Width is the fixed length of a raw entity id.
const Width = 8

// ID is a parsed entity identifier. The zero value is not a valid id.
type ID struct {
	Gender  string
	Class   string
	Version string
	Variant string
	Tier    string
}

type field struct {
	name     string
	width    int
	alphabet string
}

const digits = "0123456789"

var layout = []field{
	{name: "gender", width: 1, alphabet: digits},
	{name: "class", width: 2, alphabet: digits},
	{name: "version", width: 1, alphabet: digits},
	{name: "variant", width: 3, alphabet: digits},
	{name: "tier", width: 1, alphabet: digits},
}

// MalformedIDError reports an id that failed length or alphabet validation.
type MalformedIDError struct {
	Raw    string
	Field  string
	Reason string
}

func (e *MalformedIDError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed entity id %q: %s", e.Raw, e.Reason)
	}
	return fmt.Sprintf("malformed entity id %q: %s %s", e.Raw, e.Field, e.Reason)
}

// Is lets callers match the error against the services validation marker.
func (e *MalformedIDError) Is(target error) bool {
	return target == services.ErrValidation
}

// Parse decodes raw into an ID.
func Parse(raw string) (ID, error) {
	if len(raw) != Width {
		return ID{}, &MalformedIDError{Raw: raw, Reason: fmt.Sprintf("length %d, want %d", len(raw), Width)}
	}
	parts := make([]string, len(layout))
	offset := 0
	for i, f := range layout {
		chunk := raw[offset : offset+f.width]
		for _, r := range chunk {
			if !strings.ContainsRune(f.alphabet, r) {
				return ID{}, &MalformedIDError{Raw: raw, Field: f.name, Reason: fmt.Sprintf("contains illegal character %q", r)}
			}
		}
		parts[i] = chunk
		offset += f.width
	}
	return ID{
		Gender:  parts[0],
		Class:   parts[1],
		Version: parts[2],
		Variant: parts[3],
		Tier:    parts[4],
	}, nil
}

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(raw string) ID {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// String formats the id back to its raw eight-character form.
func (id ID) String() string {
	return id.Gender + id.Class + id.Version + id.Variant + id.Tier
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Compare orders ids by their raw string form.
func Compare(a, b ID) int {
	return strings.Compare(a.String(), b.String())
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return nil, &MalformedIDError{Reason: "zero value"}
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
