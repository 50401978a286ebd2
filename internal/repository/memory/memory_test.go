package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/feria/internal/domain/models"
	"github.com/mamadbah2/feria/internal/repository"
)

func sale(key string) models.Sale {
	return models.Sale{
		IdempotencyKey: key,
		SchemaVersion:  models.SchemaItems,
		Items:          []models.SaleItem{{Style: "IPA", Unit: models.UnitPinta, Quantity: 1}},
		TotalAmount:    3500,
		PaymentMethod:  models.PaymentCash,
		OperatorID:     "caja-1",
	}
}

func TestInsertSaleIsIdempotentByKey(t *testing.T) {
	ctx := context.Background()
	store := New()

	id1, err := store.InsertSale(ctx, sale("k1"))
	require.NoError(t, err)
	id2, err := store.InsertSale(ctx, sale("k1"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	require.NoError(t, store.InsertSales(ctx, []models.Sale{sale("k1"), sale("k2")}))

	sales, err := store.ListActiveSales(ctx)
	require.NoError(t, err)
	assert.Len(t, sales, 2)
}

func TestDeleteSalesIgnoresUnknownIDs(t *testing.T) {
	ctx := context.Background()
	store := New()
	id, err := store.InsertSale(ctx, sale("k1"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteSales(ctx, []string{id, "missing"}))
	require.NoError(t, store.DeleteSales(ctx, []string{id}))

	sales, err := store.ListActiveSales(ctx)
	require.NoError(t, err)
	assert.Empty(t, sales)

	// the key is free again once the record is gone
	_, err = store.InsertSale(ctx, sale("k1"))
	require.NoError(t, err)
	sales, err = store.ListActiveSales(ctx)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestBatchCeilingEnforced(t *testing.T) {
	store := New()
	batch := make([]models.Sale, repository.MaxBatchSize+1)
	assert.Error(t, store.InsertSales(context.Background(), batch))
	assert.Error(t, store.DeleteSales(context.Background(), make([]string, repository.MaxBatchSize+1)))
}

func TestActiveSlot(t *testing.T) {
	ctx := context.Background()
	store := New()

	cfg, err := store.ActiveFeria(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, store.SaveActiveFeria(ctx, models.FeriaConfig{Name: "Feria", InitialStock: map[string]float64{"IPA": 10}}))
	cfg, err = store.ActiveFeria(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	cfg.InitialStock["IPA"] = 0

	again, err := store.ActiveFeria(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10.0, again.InitialStock["IPA"], "callers get copies")

	require.NoError(t, store.ClearActiveFeria(ctx))
	cfg, err = store.ActiveFeria(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestActivationMarker(t *testing.T) {
	ctx := context.Background()
	s := New()

	marker, err := s.ActivationMarker(ctx)
	require.NoError(t, err)
	assert.Empty(t, marker)

	require.NoError(t, s.SetActivationMarker(ctx, "h-1"))
	require.NoError(t, s.SaveActiveFeria(ctx, models.FeriaConfig{Name: "Feria"}))
	marker, err = s.ActivationMarker(ctx)
	require.NoError(t, err)
	assert.Equal(t, "h-1", marker, "saving the slot keeps the marker")

	require.NoError(t, s.ClearActiveFeria(ctx))
	marker, err = s.ActivationMarker(ctx)
	require.NoError(t, err)
	assert.Empty(t, marker)
}

func TestHistoryLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New()
	now := time.Now()

	require.NoError(t, store.SaveHistory(ctx, models.HistoricalFeria{ID: "a", Config: models.FeriaConfig{Name: "A"}, ArchivedAt: now.Add(-time.Hour)}))
	require.NoError(t, store.SaveHistory(ctx, models.HistoricalFeria{ID: "b", Config: models.FeriaConfig{Name: "B"}, ArchivedAt: now}))
	assert.Error(t, store.SaveHistory(ctx, models.HistoricalFeria{ID: "c", Config: models.FeriaConfig{Name: "A"}}), "names are unique")

	found, err := store.FindHistoryByName(ctx, "A")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "a", found.ID)

	missing, err := store.FindHistoryByName(ctx, "Z")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := store.ListHistory(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "newest first")

	require.NoError(t, store.DeleteHistory(ctx, "a"))
	assert.ErrorIs(t, store.DeleteHistory(ctx, "a"), repository.ErrNotFound)
	_, err = store.GetHistory(ctx, "a")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	store := New()
	boom := errors.New("boom")
	store.FailWith(func(op Op, call int) error {
		if op == OpInsertSale && call == 2 {
			return boom
		}
		return nil
	})

	_, err := store.InsertSale(ctx, sale("k1"))
	require.NoError(t, err)
	_, err = store.InsertSale(ctx, sale("k2"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, store.Calls(OpInsertSale))

	store.FailWith(nil)
	_, err = store.InsertSale(ctx, sale("k2"))
	assert.NoError(t, err)
}
