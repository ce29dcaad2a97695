// Package selector resolves which encoder a session uses and walks the
// fallback chain after backend failures.
package selector

import (
	"github.com/tfells/capsize/internal/config"
	"github.com/tfells/capsize/internal/errors"
	"github.com/tfells/capsize/internal/hardware"
)

// Preferences captures the user's encoder constraints.
type Preferences struct {
	// Explicit pins a specific encoder. nil selects automatically.
	Explicit *hardware.Encoder

	// ForceSoftware bypasses hardware entirely.
	ForceSoftware bool

	// Compatibility remaps codec choices to the H.264 variant of the
	// same family so output plays everywhere.
	Compatibility bool
}

// PreferencesFromConfig builds Preferences from configuration. The
// encoder name "auto" (or empty) selects automatically.
func PreferencesFromConfig(cfg *config.Config) (Preferences, error) {
	prefs := Preferences{
		ForceSoftware: cfg.ForceSoftware,
		Compatibility: cfg.CompatibilityMode,
	}

	if cfg.Encoder != "" && cfg.Encoder != config.DefaultEncoderName {
		enc, err := hardware.ParseEncoder(cfg.Encoder)
		if err != nil {
			return Preferences{}, err
		}
		prefs.Explicit = &enc
	}

	return prefs, nil
}

// Select resolves the encoder for a session. Resolution is
// deterministic: the same capabilities and preferences always produce
// the same choice.
//
// Rules, in order: forced software wins; an explicit encoder is used
// when available and is an error when not (never silently substituted);
// otherwise the preferred hardware encoder, or software when none
// exists.
func Select(caps hardware.Capabilities, prefs Preferences) (hardware.Encoder, error) {
	if prefs.ForceSoftware {
		return hardware.Software, nil
	}

	if prefs.Explicit != nil {
		enc := *prefs.Explicit
		if prefs.Compatibility {
			enc = enc.CompatibilityVariant()
		}
		if !caps.Has(enc) {
			return hardware.Software, errors.NewEncoderUnavailableError(enc.String())
		}
		return enc, nil
	}

	enc := caps.Preferred
	if prefs.Compatibility {
		enc = enc.CompatibilityVariant()
	}
	if !caps.Has(enc) {
		return hardware.Software, nil
	}
	return enc, nil
}

// Fallback tracks which encoders a session has tried and yields the
// next candidate after a backend failure. Candidates follow the fixed
// priority order with software always last; an encoder is offered at
// most once.
type Fallback struct {
	caps  hardware.Capabilities
	tried map[hardware.Encoder]bool
	order []hardware.Encoder
}

// NewFallback creates a fallback chain with the first choice already
// marked as tried.
func NewFallback(caps hardware.Capabilities, first hardware.Encoder) *Fallback {
	return &Fallback{
		caps:  caps,
		tried: map[hardware.Encoder]bool{first: true},
		order: []hardware.Encoder{first},
	}
}

// Next returns the next untried available encoder. Returns false when
// every candidate is exhausted.
func (f *Fallback) Next() (hardware.Encoder, bool) {
	for _, enc := range hardware.PriorityOrder() {
		if f.tried[enc] || !f.caps.Has(enc) {
			continue
		}
		f.tried[enc] = true
		f.order = append(f.order, enc)
		return enc, true
	}
	return hardware.Software, false
}

// Tried returns the encoders attempted so far, in attempt order.
func (f *Fallback) Tried() []string {
	names := make([]string, len(f.order))
	for i, enc := range f.order {
		names[i] = enc.String()
	}
	return names
}
