package models

import "time"

// ReportSummary is derived from a sale stream. It is only ever persisted as the
// frozen report of a HistoricalFeria.
type ReportSummary struct {
	SalesCount      int            `bson:"sales_count" json:"salesCount"`
	TotalPintas     int64          `bson:"total_pintas" json:"totalPintas"`
	TotalLitros     int64          `bson:"total_litros" json:"totalLitros"`
	TotalAmount     int64          `bson:"total_amount" json:"totalAmount"`
	DigitalAmount   int64          `bson:"digital_amount" json:"digitalAmount"`
	CashAmount      int64          `bson:"cash_amount" json:"cashAmount"`
	StockSummary    []StockSummary `bson:"stock_summary" json:"stockSummary"`
	UntrackedStyles []string       `bson:"untracked_styles,omitempty" json:"untrackedStyles,omitempty"`
}

// LiveReport bundles the live report with the inputs it was derived from.
type LiveReport struct {
	Config      FeriaConfig   `json:"config"`
	Summary     ReportSummary `json:"summary"`
	GeneratedAt time.Time     `json:"generatedAt"`
}
