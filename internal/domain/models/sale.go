package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidSale indicates a sale was rejected before any write.
var ErrInvalidSale = errors.New("invalid sale")

// Unit enumerates the serving units.
type Unit string

const (
	UnitPinta Unit = "Pinta"
	UnitLitro Unit = "Litro"
	// UnitMixed only appears on legacy flattened records.
	UnitMixed Unit = "Mixto"
)

// ParseUnit maps stored or submitted unit tags to a Unit.
func ParseUnit(value string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pinta", "pint":
		return UnitPinta, nil
	case "litro", "liter", "litre":
		return UnitLitro, nil
	case "mixto", "mixed":
		return UnitMixed, nil
	default:
		return "", fmt.Errorf("unknown unit %q", value)
	}
}

// PaymentMethod enumerates how a sale was paid.
type PaymentMethod string

const (
	PaymentDigital PaymentMethod = "Digital"
	PaymentCash    PaymentMethod = "Cash"
)

// ParsePaymentMethod accepts canonical tags as well as the "$ Digital" and
// "$ Billete" tags found on older records.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "$")))
	switch normalized {
	case "digital":
		return PaymentDigital, nil
	case "cash", "billete":
		return PaymentCash, nil
	default:
		return "", fmt.Errorf("unknown payment method %q", value)
	}
}

const (
	// SchemaLegacy records carry a single flattened unit/quantity/style.
	SchemaLegacy = 1
	// SchemaItems records carry one or more SaleItem entries.
	SchemaItems = 2
)

// SaleItem is one line of a cart.
type SaleItem struct {
	Style    string `json:"style" binding:"required"`
	Unit     Unit   `json:"unit" binding:"required"`
	Quantity int    `json:"quantity" binding:"gt=0"`
}

// LegacyLine is the flattened shape of records written before carts existed.
type LegacyLine struct {
	Style    string `json:"style,omitempty"`
	Unit     Unit   `json:"unit"`
	Quantity int    `json:"quantity"`
}

// Sale is an immutable record of one transaction. TotalAmount is captured at
// creation and never recomputed from current prices.
type Sale struct {
	ID             string        `json:"id,omitempty"`
	IdempotencyKey string        `json:"idempotencyKey"`
	SchemaVersion  int           `json:"schemaVersion"`
	Timestamp      time.Time     `json:"timestamp"`
	Items          []SaleItem    `json:"items,omitempty"`
	Legacy         *LegacyLine   `json:"legacy,omitempty"`
	TotalAmount    float64       `json:"totalAmount"`
	PaymentMethod  PaymentMethod `json:"paymentMethod"`
	OperatorID     string        `json:"operatorId"`
}

// Validate applies the rules for newly recorded sales. Legacy shapes are
// accepted from storage but never produced, so they fail here.
func (s Sale) Validate() error {
	if s.SchemaVersion != SchemaItems || s.Legacy != nil {
		return fmt.Errorf("%w: only itemized sales may be recorded", ErrInvalidSale)
	}
	if len(s.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidSale)
	}
	for i, item := range s.Items {
		if strings.TrimSpace(item.Style) == "" {
			return fmt.Errorf("%w: item %d has no style", ErrInvalidSale, i)
		}
		if item.Unit != UnitPinta && item.Unit != UnitLitro {
			return fmt.Errorf("%w: item %d has unsupported unit %q", ErrInvalidSale, i, item.Unit)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidSale, i)
		}
	}
	if s.PaymentMethod != PaymentDigital && s.PaymentMethod != PaymentCash {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidSale, s.PaymentMethod)
	}
	if s.TotalAmount < 0 {
		return fmt.Errorf("%w: total amount must not be negative", ErrInvalidSale)
	}
	if strings.TrimSpace(s.OperatorID) == "" {
		return fmt.Errorf("%w: operator is required", ErrInvalidSale)
	}
	return nil
}

// WithoutID returns a copy with the store or temporary id removed.
func (s Sale) WithoutID() Sale {
	s.ID = ""
	s.Items = append([]SaleItem(nil), s.Items...)
	if s.Legacy != nil {
		legacy := *s.Legacy
		s.Legacy = &legacy
	}
	return s
}
