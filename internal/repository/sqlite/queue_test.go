package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/feria/internal/domain/models"
	"github.com/mamadbah2/feria/internal/repository"
)

func pending(id string) models.Sale {
	return models.Sale{
		ID:             id,
		IdempotencyKey: "key-" + id,
		SchemaVersion:  models.SchemaItems,
		Timestamp:      time.Date(2025, time.March, 1, 19, 0, 0, 0, time.UTC),
		Items:          []models.SaleItem{{Style: "IPA", Unit: models.UnitPinta, Quantity: 1}},
		TotalAmount:    3500,
		PaymentMethod:  models.PaymentCash,
		OperatorID:     "caja-1",
	}
}

func TestQueueEmptyByDefault(t *testing.T) {
	q, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	sales, err := q.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestQueueSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	q, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, q.Save(ctx, []models.Sale{pending("temp-1"), pending("temp-2")}))
	require.NoError(t, q.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	sales, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "temp-1", sales[0].ID)
	assert.Equal(t, "temp-2", sales[1].ID)
	assert.Equal(t, "key-temp-1", sales[0].IdempotencyKey)
}

func TestQueueSaveEmptyClearsSlot(t *testing.T) {
	ctx := context.Background()
	q, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	require.NoError(t, q.Save(ctx, []models.Sale{pending("temp-1")}))
	require.NoError(t, q.Save(ctx, nil))

	sales, err := q.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestQueueCorruptPayload(t *testing.T) {
	ctx := context.Background()
	q, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	require.NoError(t, writeSlot(ctx, q.db, PendingSlot, "{not json"))

	_, err = q.Load(ctx)
	assert.ErrorIs(t, err, repository.ErrCorruptSlot)
}

func TestStateCacheSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	q, err := Open(path)
	require.NoError(t, err)

	_, ok, err := q.StateCache().LoadState(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	cfg := models.FeriaConfig{Name: "Feria Otoño", PricePerPinta: 3500, InitialStock: map[string]float64{"IPA": 50}}
	require.NoError(t, q.StateCache().SaveState(ctx, models.FairActive(cfg)))
	require.NoError(t, q.Save(ctx, []models.Sale{pending("temp-1")}))
	require.NoError(t, q.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	state, ok, err := reopened.StateCache().LoadState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, state.Active())
	assert.Equal(t, cfg, *state.Config)

	sales, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, sales, 1, "slots are independent")

	require.NoError(t, reopened.Save(ctx, nil))
	_, ok, err = reopened.StateCache().LoadState(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "clearing the queue keeps the fair state")
}

func TestStateCacheCorruptPayload(t *testing.T) {
	ctx := context.Background()
	q, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	require.NoError(t, writeSlot(ctx, q.db, FairStateSlot, "[1,2"))

	_, _, err = q.StateCache().LoadState(ctx)
	assert.ErrorIs(t, err, repository.ErrCorruptSlot)
}
