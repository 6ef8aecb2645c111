// Package garment defines the closed set of garments a pattern can be printed on.
package garment

import (
	"errors"
	"fmt"
	"strings"
)

// Type is one of the supported garments. The string value is the display name
// substituted into prompts.
type Type string

const (
	TShirt    Type = "T-shirt"
	TankTop   Type = "Tank top"
	PoloShirt Type = "Polo Shirt"
	Hoodie    Type = "Hoodie"
)

// Default is the garment preselected in the UI.
const Default = TShirt

// ErrUnknown is returned by Parse for names outside the supported set.
var ErrUnknown = errors.New("unknown garment type")

// all keeps the UI ordering.
var all = []Type{TShirt, TankTop, PoloShirt, Hoodie}

// All returns the supported garments in display order.
func All() []Type {
	out := make([]Type, len(all))
	copy(out, all)
	return out
}

// Parse resolves a garment name case-insensitively. Surrounding whitespace is
// ignored and an empty name resolves to Default.
func Parse(name string) (Type, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Default, nil
	}
	for _, t := range all {
		if strings.EqualFold(name, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknown, name)
}

// Valid reports whether t is in the supported set.
func (t Type) Valid() bool {
	for _, g := range all {
		if g == t {
			return true
		}
	}
	return false
}

func (t Type) String() string {
	return string(t)
}
