package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gioigioi124/elanAI/internal/events"
	"github.com/gioigioi124/elanAI/internal/model"
)

func leaderUpdate(orderID uuid.UUID, index int, v string) model.BatchUpdate {
	d := decimal.RequireFromString(v)
	return model.BatchUpdate{OrderID: orderID.String(), ItemIndex: index, LeaderValue: &d}
}

func warehouseUpdate(orderID uuid.UUID, index int, v string) model.BatchUpdate {
	return model.BatchUpdate{OrderID: orderID.String(), ItemIndex: index, WarehouseValue: &v}
}

func TestConfirmBatch_IsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	newOrder := func(wh model.Warehouse) *model.Order {
		o, err := f.svc.CreateOrder(ctx, model.OrderInput{
			Customer: model.CustomerSnapshot{Name: "Công trình Q7"},
			Items:    []model.ItemInput{item("Gạch ống", "1000", wh), item("Gạch thẻ", "500", wh)},
		})
		require.NoError(t, err)
		return o
	}

	good := newOrder(model.WarehouseK01)
	badIndex := newOrder(model.WarehouseK01)
	otherWarehouse := newOrder(model.WarehouseK02)

	actor := model.Actor{UserID: "w1", Role: model.RoleWarehouse, WarehouseCode: model.WarehouseK01}
	res := f.svc.ConfirmBatch(ctx, actor, []model.BatchUpdate{
		leaderUpdate(good.ID, 0, "950"),
		leaderUpdate(badIndex.ID, 0, "1000"),
		warehouseUpdate(good.ID, 1, "14h"),
		leaderUpdate(badIndex.ID, 7, "1"),
		warehouseUpdate(otherWarehouse.ID, 0, "1000"),
		{OrderID: "not-a-uuid", ItemIndex: 0},
	})

	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 3, res.ErrorCount)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, badIndex.ID.String(), res.Errors[0].OrderID)
	assert.Equal(t, otherWarehouse.ID.String(), res.Errors[1].OrderID)
	assert.Equal(t, "not-a-uuid", res.Errors[2].OrderID)

	saved, err := f.svc.GetOrder(ctx, good.ID)
	require.NoError(t, err)
	assert.True(t, saved.Items[0].ShortageQty.Equal(dec("50")))
	require.NotNil(t, saved.Items[1].WarehouseConfirm)
	assert.Equal(t, "14h", saved.Items[1].WarehouseConfirm.Value.Raw)

	untouched, err := f.svc.GetOrder(ctx, badIndex.ID)
	require.NoError(t, err)
	assert.Nil(t, untouched.Items[0].LeaderConfirm, "a failed order must not be partially saved")

	assert.Len(t, f.pub.ofType(events.ShortageChanged), 1)
}

func TestConfirmBatch_Empty(t *testing.T) {
	f := newFixture(t)

	res := f.svc.ConfirmBatch(context.Background(), model.Actor{Role: model.RoleAdmin}, nil)
	assert.Zero(t, res.SuccessCount)
	assert.Zero(t, res.ErrorCount)
	assert.NotNil(t, res.Errors)
}
