package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig indicates a fair configuration failed validation.
var ErrInvalidConfig = errors.New("invalid feria config")

// FeriaConfig describes a fair: identity, unit prices, dates and the initial
// stock per beer style in liters.
type FeriaConfig struct {
	Name            string             `json:"name" binding:"required"`
	PricePerPinta   float64            `json:"pricePerPinta" binding:"gte=0"`
	PricePerLitro   float64            `json:"pricePerLitro" binding:"gte=0"`
	DateStart       time.Time          `json:"dateStart"`
	DateEnd         time.Time          `json:"dateEnd"`
	InitialStock    map[string]float64 `json:"initialStock"`
	WastePerPintaMl float64            `json:"wastePerPintaMl" binding:"gte=0"`
}

// Validate checks the invariants a config must satisfy before it can occupy
// the active slot.
func (c FeriaConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if c.PricePerPinta < 0 || c.PricePerLitro < 0 {
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidConfig)
	}
	if c.WastePerPintaMl < 0 {
		return fmt.Errorf("%w: waste per pinta must not be negative", ErrInvalidConfig)
	}
	for style, liters := range c.InitialStock {
		if strings.TrimSpace(style) == "" {
			return fmt.Errorf("%w: stock style must not be empty", ErrInvalidConfig)
		}
		if liters < 0 {
			return fmt.Errorf("%w: stock for %s must not be negative", ErrInvalidConfig, style)
		}
	}
	if !c.DateStart.IsZero() && !c.DateEnd.IsZero() && c.DateEnd.Before(c.DateStart) {
		return fmt.Errorf("%w: dateEnd is before dateStart", ErrInvalidConfig)
	}
	return nil
}

// Tracks reports whether the style has configured stock.
func (c FeriaConfig) Tracks(style string) bool {
	_, ok := c.InitialStock[style]
	return ok
}

// Phase is the state of the active slot.
type Phase string

const (
	PhaseNoActiveFair Phase = "no_active_fair"
	PhaseFairActive   Phase = "fair_active"
)

// FairState is the explicit state machine over the active slot.
type FairState struct {
	Phase  Phase        `json:"phase"`
	Config *FeriaConfig `json:"config,omitempty"`
}

// NoActiveFair returns the empty state.
func NoActiveFair() FairState {
	return FairState{Phase: PhaseNoActiveFair}
}

// FairActive returns the state holding cfg.
func FairActive(cfg FeriaConfig) FairState {
	return FairState{Phase: PhaseFairActive, Config: &cfg}
}

// Active reports whether a fair occupies the slot.
func (s FairState) Active() bool {
	return s.Phase == PhaseFairActive && s.Config != nil
}
