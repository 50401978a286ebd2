package reporting

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/feria/internal/domain/models"
	"github.com/mamadbah2/feria/internal/service/stock"
)

const (
	// PintaLiters is the nominal volume of one pinta.
	PintaLiters = 0.473
	dateLayout  = "2006-01-02"
)

// Service derives reports from a fair config and its sale stream.
type Service struct {
	logger *zap.Logger
}

// NewService wires a new reporting service instance.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger}
}

// Summarize runs the engine and logs styles excluded from stock accounting.
func (s *Service) Summarize(cfg models.FeriaConfig, sales []models.Sale) models.ReportSummary {
	summary := Summarize(cfg, sales)
	if len(summary.UntrackedStyles) > 0 {
		s.logger.Debug("sales reference styles without configured stock",
			zap.String("feria", cfg.Name),
			zap.Strings("styles", summary.UntrackedStyles))
	}
	return summary
}

type line struct {
	style    string
	unit     models.Unit
	quantity float64
}

type styleUsage struct {
	consumed float64
	wastage  float64
}

// Summarize aggregates sales into financial totals and per-style stock. It is
// deterministic and never persists anything.
func Summarize(cfg models.FeriaConfig, sales []models.Sale) models.ReportSummary {
	var (
		pintas  float64
		litros  float64
		digital = decimal.Zero
		cash    = decimal.Zero
	)

	usage := make(map[string]*styleUsage, len(cfg.InitialStock))
	for style := range cfg.InitialStock {
		usage[style] = &styleUsage{}
	}
	wasteL := math.Max(0, cfg.WastePerPintaMl) / 1000
	untracked := map[string]struct{}{}

	for _, sale := range sales {
		amount := decimal.NewFromFloat(sale.TotalAmount)
		if sale.PaymentMethod == models.PaymentDigital {
			digital = digital.Add(amount)
		} else {
			cash = cash.Add(amount)
		}

		for _, l := range normalize(sale) {
			switch l.unit {
			case models.UnitPinta:
				pintas += l.quantity
			case models.UnitLitro:
				litros += l.quantity
			case models.UnitMixed:
				pintas += l.quantity / 2
				litros += l.quantity / 2
				continue
			default:
				continue
			}

			if l.style == "" {
				continue
			}
			u, ok := usage[l.style]
			if !ok {
				untracked[l.style] = struct{}{}
				continue
			}
			if l.unit == models.UnitPinta {
				u.consumed += l.quantity * PintaLiters
				u.wastage += l.quantity * wasteL
			} else {
				u.consumed += l.quantity
			}
		}
	}

	digitalRounded := digital.Round(0).IntPart()
	cashRounded := cash.Round(0).IntPart()

	summary := models.ReportSummary{
		SalesCount:    len(sales),
		TotalPintas:   int64(math.Round(pintas)),
		TotalLitros:   int64(math.Round(litros)),
		DigitalAmount: digitalRounded,
		CashAmount:    cashRounded,
		TotalAmount:   digitalRounded + cashRounded,
		StockSummary:  make([]models.StockSummary, 0, len(usage)),
	}

	for style, u := range usage {
		summary.StockSummary = append(summary.StockSummary, stock.Compute(style, cfg.InitialStock[style], u.consumed, u.wastage))
	}
	sort.Slice(summary.StockSummary, func(i, j int) bool {
		return summary.StockSummary[i].Style < summary.StockSummary[j].Style
	})

	for style := range untracked {
		summary.UntrackedStyles = append(summary.UntrackedStyles, style)
	}
	sort.Strings(summary.UntrackedStyles)

	return summary
}

// normalize flattens both record shapes into report lines.
func normalize(sale models.Sale) []line {
	if len(sale.Items) > 0 {
		lines := make([]line, 0, len(sale.Items))
		for _, item := range sale.Items {
			if item.Quantity <= 0 {
				continue
			}
			lines = append(lines, line{style: item.Style, unit: item.Unit, quantity: float64(item.Quantity)})
		}
		return lines
	}

	if sale.Legacy != nil && sale.Legacy.Quantity > 0 {
		return []line{{style: sale.Legacy.Style, unit: sale.Legacy.Unit, quantity: float64(sale.Legacy.Quantity)}}
	}

	return nil
}

// FormatSummary renders a plain-text digest suitable for chat notifications.
func FormatSummary(cfg models.FeriaConfig, summary models.ReportSummary) string {
	var b strings.Builder

	header := cfg.Name
	if !cfg.DateStart.IsZero() {
		header = fmt.Sprintf("%s (%s)", header, cfg.DateStart.Format(dateLayout))
	}
	fmt.Fprintf(&b, "Report %s\n", header)

	if summary.SalesCount == 0 {
		b.WriteString("No sales recorded yet.")
		return b.String()
	}

	fmt.Fprintf(&b, "Sales: %d | Pintas: %d | Litros: %d\n", summary.SalesCount, summary.TotalPintas, summary.TotalLitros)
	fmt.Fprintf(&b, "Total: $%d (digital $%d, cash $%d)", summary.TotalAmount, summary.DigitalAmount, summary.CashAmount)

	for _, s := range summary.StockSummary {
		fmt.Fprintf(&b, "\n%s: %.1fL / %.0fL left (%d%%)", s.Style, s.Remaining, s.Initial, s.Percentage)
	}

	if len(summary.UntrackedStyles) > 0 {
		fmt.Fprintf(&b, "\nWithout stock config: %s", strings.Join(summary.UntrackedStyles, ", "))
	}

	return b.String()
}
