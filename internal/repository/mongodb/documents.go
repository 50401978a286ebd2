package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/feria/internal/domain/models"
)

// The document types below are the only shapes written to MongoDB. Converting
// through them drops anything not listed, so zero-value or unknown fields never
// reach storage.

type configDocument struct {
	Name            string             `bson:"name"`
	PricePerPinta   float64            `bson:"price_per_pinta"`
	PricePerLitro   float64            `bson:"price_per_litro"`
	DateStart       time.Time          `bson:"date_start,omitempty"`
	DateEnd         time.Time          `bson:"date_end,omitempty"`
	InitialStock    map[string]float64 `bson:"initial_stock"`
	WastePerPintaMl float64            `bson:"waste_per_pinta_ml"`
}

// configFields lists the keys unset when the active slot is cleared.
var configFields = []string{
	"name", "price_per_pinta", "price_per_litro", "date_start", "date_end", "initial_stock", "waste_per_pinta_ml",
}

type settingsDocument struct {
	ID             string `bson:"_id"`
	configDocument `bson:",inline"`
}

type saleItemDocument struct {
	Style    string `bson:"style"`
	Unit     string `bson:"unit"`
	Quantity int    `bson:"quantity"`
}

type saleFields struct {
	IdempotencyKey string             `bson:"idempotency_key,omitempty"`
	SchemaVersion  int                `bson:"schema_version,omitempty"`
	Timestamp      time.Time          `bson:"timestamp"`
	Items          []saleItemDocument `bson:"items,omitempty"`
	Unit           string             `bson:"unit,omitempty"`
	Quantity       int                `bson:"quantity,omitempty"`
	Style          string             `bson:"style,omitempty"`
	TotalAmount    float64            `bson:"total_amount"`
	PaymentMethod  string             `bson:"payment_method"`
	OperatorID     string             `bson:"operator_id"`
}

type liveSaleDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	saleFields `bson:",inline"`
}

type archivedSaleDocument struct {
	ID         string `bson:"id,omitempty"`
	saleFields `bson:",inline"`
}

type historyDocument struct {
	ID         string                 `bson:"_id"`
	Config     configDocument         `bson:"config"`
	Sales      []archivedSaleDocument `bson:"sales"`
	Report     models.ReportSummary   `bson:"report_summary"`
	ArchivedAt time.Time              `bson:"archived_at"`
	Status     string                 `bson:"status,omitempty"`
}

func toConfigDocument(cfg models.FeriaConfig) configDocument {
	stock := make(map[string]float64, len(cfg.InitialStock))
	for style, liters := range cfg.InitialStock {
		stock[style] = liters
	}
	return configDocument{
		Name:            cfg.Name,
		PricePerPinta:   cfg.PricePerPinta,
		PricePerLitro:   cfg.PricePerLitro,
		DateStart:       cfg.DateStart.UTC(),
		DateEnd:         cfg.DateEnd.UTC(),
		InitialStock:    stock,
		WastePerPintaMl: cfg.WastePerPintaMl,
	}
}

func fromConfigDocument(doc configDocument) models.FeriaConfig {
	stock := make(map[string]float64, len(doc.InitialStock))
	for style, liters := range doc.InitialStock {
		stock[style] = liters
	}
	return models.FeriaConfig{
		Name:            doc.Name,
		PricePerPinta:   doc.PricePerPinta,
		PricePerLitro:   doc.PricePerLitro,
		DateStart:       doc.DateStart,
		DateEnd:         doc.DateEnd,
		InitialStock:    stock,
		WastePerPintaMl: doc.WastePerPintaMl,
	}
}

func toSaleFields(sale models.Sale) saleFields {
	fields := saleFields{
		IdempotencyKey: sale.IdempotencyKey,
		SchemaVersion:  sale.SchemaVersion,
		Timestamp:      sale.Timestamp.UTC(),
		TotalAmount:    sale.TotalAmount,
		PaymentMethod:  string(sale.PaymentMethod),
		OperatorID:     sale.OperatorID,
	}
	if len(sale.Items) > 0 {
		fields.Items = make([]saleItemDocument, len(sale.Items))
		for i, item := range sale.Items {
			fields.Items[i] = saleItemDocument{Style: item.Style, Unit: string(item.Unit), Quantity: item.Quantity}
		}
		return fields
	}
	if sale.Legacy != nil {
		fields.Unit = string(sale.Legacy.Unit)
		fields.Quantity = sale.Legacy.Quantity
		fields.Style = sale.Legacy.Style
	}
	return fields
}

// fromSaleFields detects the record shape. Documents written before carts
// existed have no items and no schema version.
func fromSaleFields(id string, fields saleFields) models.Sale {
	sale := models.Sale{
		ID:             id,
		IdempotencyKey: fields.IdempotencyKey,
		Timestamp:      fields.Timestamp,
		TotalAmount:    fields.TotalAmount,
		PaymentMethod:  parsePayment(fields.PaymentMethod),
		OperatorID:     fields.OperatorID,
	}

	if len(fields.Items) > 0 {
		sale.SchemaVersion = models.SchemaItems
		sale.Items = make([]models.SaleItem, len(fields.Items))
		for i, item := range fields.Items {
			sale.Items[i] = models.SaleItem{Style: item.Style, Unit: parseUnit(item.Unit), Quantity: item.Quantity}
		}
		return sale
	}

	sale.SchemaVersion = models.SchemaLegacy
	if fields.Unit != "" {
		sale.Legacy = &models.LegacyLine{Style: fields.Style, Unit: parseUnit(fields.Unit), Quantity: fields.Quantity}
	}
	return sale
}

func toLiveSaleDocument(sale models.Sale) liveSaleDocument {
	return liveSaleDocument{saleFields: toSaleFields(sale)}
}

func fromLiveSaleDocument(doc liveSaleDocument) models.Sale {
	return fromSaleFields(doc.ID.Hex(), doc.saleFields)
}

func toHistoryDocument(record models.HistoricalFeria) historyDocument {
	sales := make([]archivedSaleDocument, len(record.Sales))
	for i, sale := range record.Sales {
		sales[i] = archivedSaleDocument{ID: sale.ID, saleFields: toSaleFields(sale)}
	}
	return historyDocument{
		ID:         record.ID,
		Config:     toConfigDocument(record.Config),
		Sales:      sales,
		Report:     record.Report,
		ArchivedAt: record.ArchivedAt.UTC(),
		Status:     string(record.Status),
	}
}

func fromHistoryDocument(doc historyDocument) models.HistoricalFeria {
	sales := make([]models.Sale, len(doc.Sales))
	for i, sale := range doc.Sales {
		sales[i] = fromSaleFields(sale.ID, sale.saleFields)
	}
	status := models.ArchiveStatus(doc.Status)
	if status == "" {
		status = models.StatusArchived
	}
	return models.HistoricalFeria{
		ID:         doc.ID,
		Config:     fromConfigDocument(doc.Config),
		Sales:      sales,
		Report:     doc.Report,
		ArchivedAt: doc.ArchivedAt,
		Status:     status,
	}
}

func parseUnit(value string) models.Unit {
	unit, err := models.ParseUnit(value)
	if err != nil {
		return models.Unit(value)
	}
	return unit
}

func parsePayment(value string) models.PaymentMethod {
	method, err := models.ParsePaymentMethod(value)
	if err != nil {
		return models.PaymentMethod(value)
	}
	return method
}
