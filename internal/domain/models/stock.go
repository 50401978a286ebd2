package models

// StockSummary is the depletion state of one beer style.
type StockSummary struct {
	Style          string  `bson:"style" json:"style"`
	Initial        float64 `bson:"initial" json:"initial"`
	ConsumedLiters float64 `bson:"consumed_liters" json:"consumedLiters"`
	WastageLiters  float64 `bson:"wastage_liters" json:"wastageLiters"`
	Remaining      float64 `bson:"remaining" json:"remaining"`
	Percentage     int     `bson:"percentage" json:"percentage"`
}
