// Package cfg decodes the raw per-driver config maps found under
// [cache.drivers.<name>] and [audit.drivers.<name>].
package cfg

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Setter is implemented by settings structs that fill their own defaults.
type Setter interface {
	ApplyDefaults()
}

// Validator is implemented by settings structs that can reject bad values
// after defaults have been applied.
type Validator interface {
	Validate() error
}

func newDecoder(result any, md *mapstructure.Metadata) (*mapstructure.Decoder, error) {
	return mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         md,
		Result:           result,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
}

// Decode decodes input into c, then runs ApplyDefaults and Validate when c
// implements them. A nil input leaves c at its defaults.
func Decode(input map[string]any, c any) error {
	_, err := DecodeWithUnused(input, c)
	return err
}

// DecodeWithUnused is Decode that also reports keys c did not consume,
// sorted, so callers can warn about them.
func DecodeWithUnused(input map[string]any, c any) ([]string, error) {
	var md mapstructure.Metadata
	decoder, err := newDecoder(c, &md)
	if err != nil {
		return nil, err
	}
	if input != nil {
		if err := decoder.Decode(input); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}

	if s, ok := c.(Setter); ok {
		s.ApplyDefaults()
	}
	if v, ok := c.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	unused := md.Unused
	sort.Strings(unused)
	return unused, nil
}

// SubMap returns m[key] as a map when present, nil otherwise. TOML tables
// decode to map[string]any, so this covers every driver section.
func SubMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	sub, ok := m[key].(map[string]any)
	if !ok {
		return nil
	}
	return sub
}
