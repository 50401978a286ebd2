package reporting

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/feria/internal/domain/models"
)

func ipaConfig() models.FeriaConfig {
	return models.FeriaConfig{
		Name:            "Feria Cervecera",
		PricePerPinta:   3500,
		PricePerLitro:   7000,
		DateStart:       time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		InitialStock:    map[string]float64{"IPA": 20},
		WastePerPintaMl: 20,
	}
}

func itemSale(method models.PaymentMethod, amount float64, items ...models.SaleItem) models.Sale {
	return models.Sale{
		SchemaVersion: models.SchemaItems,
		Items:         items,
		TotalAmount:   amount,
		PaymentMethod: method,
		OperatorID:    "caja-1",
	}
}

func findStock(t *testing.T, summary models.ReportSummary, style string) models.StockSummary {
	t.Helper()
	for _, s := range summary.StockSummary {
		if s.Style == style {
			return s
		}
	}
	t.Fatalf("style %s missing from stock summary", style)
	return models.StockSummary{}
}

func TestSummarizeIPAExample(t *testing.T) {
	sales := []models.Sale{
		itemSale(models.PaymentCash, 10500, models.SaleItem{Style: "IPA", Unit: models.UnitPinta, Quantity: 3}),
		itemSale(models.PaymentDigital, 7000, models.SaleItem{Style: "IPA", Unit: models.UnitPinta, Quantity: 2}),
	}

	summary := Summarize(ipaConfig(), sales)

	assert.Equal(t, 2, summary.SalesCount)
	assert.Equal(t, int64(5), summary.TotalPintas)
	assert.Equal(t, int64(0), summary.TotalLitros)
	assert.Equal(t, int64(17500), summary.TotalAmount)
	assert.Equal(t, int64(7000), summary.DigitalAmount)
	assert.Equal(t, int64(10500), summary.CashAmount)

	ipa := findStock(t, summary, "IPA")
	assert.InDelta(t, 20, ipa.Initial, 1e-9)
	assert.InDelta(t, 2.365, ipa.ConsumedLiters, 1e-9)
	assert.InDelta(t, 0.1, ipa.WastageLiters, 1e-9)
	assert.InDelta(t, 17.535, ipa.Remaining, 1e-9)
	assert.Equal(t, 88, ipa.Percentage)
}

func TestSummarizeLitroSalesSkipWasteAllowance(t *testing.T) {
	sales := []models.Sale{
		itemSale(models.PaymentCash, 14000,
			models.SaleItem{Style: "IPA", Unit: models.UnitLitro, Quantity: 2},
		),
	}

	ipa := findStock(t, Summarize(ipaConfig(), sales), "IPA")
	assert.InDelta(t, 2, ipa.ConsumedLiters, 1e-9)
	assert.InDelta(t, 0, ipa.WastageLiters, 1e-9)
	assert.InDelta(t, 18, ipa.Remaining, 1e-9)
	assert.Equal(t, 90, ipa.Percentage)
}

func TestSummarizeUntrackedStyleCountsMoneyButNotStock(t *testing.T) {
	sales := []models.Sale{
		itemSale(models.PaymentDigital, 10500,
			models.SaleItem{Style: "Stout", Unit: models.UnitPinta, Quantity: 1},
			models.SaleItem{Style: "Stout", Unit: models.UnitLitro, Quantity: 1},
		),
	}

	summary := Summarize(ipaConfig(), sales)

	assert.Equal(t, int64(1), summary.TotalPintas)
	assert.Equal(t, int64(1), summary.TotalLitros)
	assert.Equal(t, int64(10500), summary.TotalAmount)
	require.Len(t, summary.StockSummary, 1)
	assert.Equal(t, "IPA", summary.StockSummary[0].Style)
	assert.InDelta(t, 20, summary.StockSummary[0].Remaining, 1e-9)
	assert.Equal(t, []string{"Stout"}, summary.UntrackedStyles)
}

func TestSummarizeSeedsEveryConfiguredStyle(t *testing.T) {
	cfg := ipaConfig()
	cfg.InitialStock = map[string]float64{"IPA": 20, "Amber": 30, "Empty": 0}

	summary := Summarize(cfg, nil)

	require.Len(t, summary.StockSummary, 3)
	assert.Equal(t, []string{"Amber", "Empty", "IPA"}, []string{
		summary.StockSummary[0].Style, summary.StockSummary[1].Style, summary.StockSummary[2].Style,
	})
	assert.Equal(t, 0, summary.StockSummary[1].Percentage)
	assert.Equal(t, 100, summary.StockSummary[2].Percentage)
	assert.Zero(t, summary.TotalAmount)
}

func TestSummarizeLegacyShapes(t *testing.T) {
	sales := []models.Sale{
		{SchemaVersion: models.SchemaLegacy, Legacy: &models.LegacyLine{Unit: models.UnitPinta, Quantity: 2}, TotalAmount: 7000, PaymentMethod: models.PaymentCash},
		{SchemaVersion: models.SchemaLegacy, Legacy: &models.LegacyLine{Unit: models.UnitLitro, Quantity: 1}, TotalAmount: 7000, PaymentMethod: models.PaymentDigital},
		{SchemaVersion: models.SchemaLegacy, Legacy: &models.LegacyLine{Style: "IPA", Unit: models.UnitMixed, Quantity: 4}, TotalAmount: 21000, PaymentMethod: models.PaymentCash},
		{SchemaVersion: models.SchemaLegacy, Legacy: &models.LegacyLine{Style: "IPA", Unit: models.UnitLitro, Quantity: 1}, TotalAmount: 7000, PaymentMethod: models.PaymentCash},
	}

	summary := Summarize(ipaConfig(), sales)

	assert.Equal(t, int64(4), summary.TotalPintas)
	assert.Equal(t, int64(4), summary.TotalLitros)
	assert.Equal(t, int64(42000), summary.TotalAmount)

	ipa := findStock(t, summary, "IPA")
	assert.InDelta(t, 1, ipa.ConsumedLiters, 1e-9, "mixed lines never touch stock")
}

func TestSummarizeTotalsAlwaysBalance(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	methods := []models.PaymentMethod{models.PaymentDigital, models.PaymentCash}

	for round := 0; round < 200; round++ {
		var sales []models.Sale
		for i := 0; i < rng.Intn(40); i++ {
			amount := float64(rng.Intn(20000)) + rng.Float64()
			sales = append(sales, itemSale(methods[rng.Intn(2)], amount,
				models.SaleItem{Style: "IPA", Unit: models.UnitPinta, Quantity: 1 + rng.Intn(4)}))
		}

		summary := Summarize(ipaConfig(), sales)
		assert.Equal(t, summary.TotalAmount, summary.DigitalAmount+summary.CashAmount)
	}
}

func TestSummarizeHalfAmountsStillBalance(t *testing.T) {
	sales := []models.Sale{
		itemSale(models.PaymentDigital, 0.5, models.SaleItem{Style: "IPA", Unit: models.UnitPinta, Quantity: 1}),
		itemSale(models.PaymentCash, 0.5, models.SaleItem{Style: "IPA", Unit: models.UnitPinta, Quantity: 1}),
	}

	summary := Summarize(ipaConfig(), sales)
	assert.Equal(t, summary.TotalAmount, summary.DigitalAmount+summary.CashAmount)
}

func TestServiceSummarizeMatchesEngine(t *testing.T) {
	sales := []models.Sale{
		itemSale(models.PaymentCash, 3500, models.SaleItem{Style: "Porter", Unit: models.UnitPinta, Quantity: 1}),
	}
	svc := NewService(nil)
	assert.Equal(t, Summarize(ipaConfig(), sales), svc.Summarize(ipaConfig(), sales))
}

func TestFormatSummary(t *testing.T) {
	cfg := ipaConfig()

	empty := FormatSummary(cfg, Summarize(cfg, nil))
	assert.Contains(t, empty, "Feria Cervecera (2025-03-01)")
	assert.Contains(t, empty, "No sales recorded yet.")

	sales := []models.Sale{
		itemSale(models.PaymentCash, 10500, models.SaleItem{Style: "IPA", Unit: models.UnitPinta, Quantity: 3}),
		itemSale(models.PaymentDigital, 3500, models.SaleItem{Style: "Stout", Unit: models.UnitPinta, Quantity: 1}),
	}
	text := FormatSummary(cfg, Summarize(cfg, sales))
	assert.Contains(t, text, "Sales: 2 | Pintas: 4 | Litros: 0")
	assert.Contains(t, text, "Total: $14000 (digital $3500, cash $10500)")
	assert.Contains(t, text, "IPA:")
	assert.Contains(t, text, "Without stock config: Stout")
}
