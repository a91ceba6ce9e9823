package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gioigioi124/elanAI/internal/model"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newItem(quantity string) *model.Item {
	it := &model.Item{
		ID:          uuid.New(),
		ProductName: "Xi măng",
		Unit:        "bao",
		Quantity:    dec(quantity),
		Warehouse:   model.WarehouseK01,
	}
	ResetShortage(it)
	return it
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name         string
		quantity     string
		confirmed    string
		compensated  string
		prev         model.ShortageStatus
		wantShortage string
		wantStatus   model.ShortageStatus
	}{
		{name: "full delivery closes", quantity: "100", confirmed: "100", compensated: "0", prev: model.ShortageOpen, wantShortage: "0", wantStatus: model.ShortageClosed},
		{name: "over delivery clamps to zero", quantity: "100", confirmed: "120", compensated: "0", prev: model.ShortageOpen, wantShortage: "0", wantStatus: model.ShortageClosed},
		{name: "short delivery opens", quantity: "100", confirmed: "70", compensated: "0", prev: model.ShortageOpen, wantShortage: "30", wantStatus: model.ShortageOpen},
		{name: "compensated covers shortage", quantity: "100", confirmed: "70", compensated: "30", prev: model.ShortageOpen, wantShortage: "30", wantStatus: model.ShortageClosed},
		{name: "compensation exceeds recomputed shortage", quantity: "100", confirmed: "90", compensated: "30", prev: model.ShortageClosed, wantShortage: "10", wantStatus: model.ShortageClosed},
		{name: "closed reopens when shortage grows", quantity: "100", confirmed: "50", compensated: "30", prev: model.ShortageClosed, wantShortage: "50", wantStatus: model.ShortageOpen},
		{name: "ignored stays ignored", quantity: "100", confirmed: "95", compensated: "0", prev: model.ShortageIgnored, wantShortage: "5", wantStatus: model.ShortageIgnored},
		{name: "ignored promoted to closed at zero", quantity: "100", confirmed: "100", compensated: "0", prev: model.ShortageIgnored, wantShortage: "0", wantStatus: model.ShortageClosed},
		{name: "fractional quantities", quantity: "10.5", confirmed: "10.25", compensated: "0", prev: model.ShortageOpen, wantShortage: "0.25", wantStatus: model.ShortageOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shortage, status := Evaluate(dec(tt.quantity), dec(tt.confirmed), dec(tt.compensated), tt.prev)
			assert.True(t, shortage.Equal(dec(tt.wantShortage)), "shortage = %s, want %s", shortage, tt.wantShortage)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestApplyLeaderConfirm(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	it := newItem("100")

	require.NoError(t, ApplyLeaderConfirm(it, dec("70"), now))

	require.NotNil(t, it.LeaderConfirm)
	assert.True(t, it.LeaderConfirm.Value.Equal(dec("70")))
	assert.Equal(t, now, it.LeaderConfirm.ConfirmedAt)
	assert.True(t, it.ShortageQty.Equal(dec("30")))
	assert.Equal(t, model.ShortageOpen, it.ShortageStatus)
}

func TestApplyLeaderConfirm_Negative(t *testing.T) {
	it := newItem("100")

	err := ApplyLeaderConfirm(it, dec("-1"), time.Now())
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Nil(t, it.LeaderConfirm)
}

func TestApplyLeaderConfirm_IgnoredPromotedToClosed(t *testing.T) {
	it := newItem("20")
	require.NoError(t, ApplyLeaderConfirm(it, dec("15"), time.Now()))
	require.NoError(t, Ignore(it))
	require.Equal(t, model.ShortageIgnored, it.ShortageStatus)

	require.NoError(t, ApplyLeaderConfirm(it, dec("18"), time.Now()))
	assert.Equal(t, model.ShortageIgnored, it.ShortageStatus, "ignored must not reopen")

	require.NoError(t, ApplyLeaderConfirm(it, dec("20"), time.Now()))
	assert.True(t, it.ShortageQty.IsZero())
	assert.Equal(t, model.ShortageClosed, it.ShortageStatus)
}

func TestApplyLeaderConfirm_RescalesCm(t *testing.T) {
	it := newItem("10")
	it.CmQty = dec("50")

	require.NoError(t, ApplyLeaderConfirm(it, dec("8"), time.Now()))
	assert.True(t, it.CmQty.Equal(dec("40")), "cmQty = %s", it.CmQty)
	assert.True(t, it.CmQtyPerUnit.Equal(dec("5")))

	// повторное подтверждение не должно накапливать погрешность
	require.NoError(t, ApplyLeaderConfirm(it, dec("9"), time.Now()))
	assert.True(t, it.CmQty.Equal(dec("45")), "cmQty = %s", it.CmQty)
}

func TestApplyWarehouseConfirm(t *testing.T) {
	tests := []struct {
		name    string
		actor   model.Actor
		wantErr error
	}{
		{name: "same warehouse", actor: model.Actor{Role: model.RoleWarehouse, WarehouseCode: model.WarehouseK01}},
		{name: "admin", actor: model.Actor{Role: model.RoleAdmin}},
		{name: "other warehouse", actor: model.Actor{Role: model.RoleWarehouse, WarehouseCode: model.WarehouseK02}, wantErr: model.ErrAuthorization},
		{name: "leader without warehouse", actor: model.Actor{Role: model.RoleLeader}, wantErr: model.ErrAuthorization},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := newItem("10")
			require.NoError(t, ApplyLeaderConfirm(it, dec("7"), time.Now()))

			err := ApplyWarehouseConfirm(tt.actor, it, "16h", time.Now())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, it.WarehouseConfirm)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, it.WarehouseConfirm)
			assert.Equal(t, model.ConfirmScheduled, it.WarehouseConfirm.Value.Kind)
			assert.True(t, it.ShortageQty.Equal(dec("3")), "warehouse confirm must not touch shortage")
		})
	}
}

func TestApplyCompensation_Scenario(t *testing.T) {
	it := newItem("100")
	require.NoError(t, ApplyLeaderConfirm(it, dec("70"), time.Now()))

	require.NoError(t, ApplyCompensation(it, dec("20")))
	assert.True(t, it.CompensatedQty.Equal(dec("20")))
	assert.Equal(t, model.ShortageOpen, it.ShortageStatus)
	assert.True(t, it.RemainingShortage().Equal(dec("10")))

	err := ApplyCompensation(it, dec("15"))
	require.ErrorIs(t, err, model.ErrPreconditionFailed)
	assert.True(t, it.CompensatedQty.Equal(dec("20")), "rejected compensation must not change the item")

	require.NoError(t, ApplyCompensation(it, dec("10")))
	assert.True(t, it.CompensatedQty.Equal(dec("30")))
	assert.Equal(t, model.ShortageClosed, it.ShortageStatus)

	err = ApplyCompensation(it, dec("1"))
	require.ErrorIs(t, err, model.ErrPreconditionFailed)
}

func TestApplyCompensation_Ignored(t *testing.T) {
	it := newItem("10")
	require.NoError(t, ApplyLeaderConfirm(it, dec("5"), time.Now()))
	require.NoError(t, Ignore(it))

	err := ApplyCompensation(it, dec("1"))
	require.ErrorIs(t, err, model.ErrPreconditionFailed)
}

func TestApplyCompensation_NoShortage(t *testing.T) {
	it := newItem("10")

	err := ApplyCompensation(it, dec("1"))
	require.ErrorIs(t, err, model.ErrPreconditionFailed)
}

func TestIgnore_Closed(t *testing.T) {
	it := newItem("10")
	require.NoError(t, ApplyLeaderConfirm(it, dec("10"), time.Now()))

	err := Ignore(it)
	require.ErrorIs(t, err, model.ErrPreconditionFailed)
	assert.Equal(t, model.ShortageClosed, it.ShortageStatus)
}

func TestRecompute_Idempotent(t *testing.T) {
	it := newItem("100")
	require.NoError(t, ApplyLeaderConfirm(it, dec("70"), time.Now()))
	require.NoError(t, ApplyCompensation(it, dec("30")))

	// правка подтверждения в обход движка
	it.LeaderConfirm.Value = dec("90")

	assert.True(t, Recompute(it))
	assert.True(t, it.ShortageQty.Equal(dec("10")))
	assert.Equal(t, model.ShortageClosed, it.ShortageStatus)
	assert.True(t, it.CompensatedQty.Equal(dec("30")), "compensated quantity is never reduced")

	assert.False(t, Recompute(it))
}

func TestRecompute_Unconfirmed(t *testing.T) {
	it := newItem("100")

	assert.False(t, Recompute(it))
	assert.True(t, it.ShortageQty.IsZero())
	assert.Equal(t, model.ShortageOpen, it.ShortageStatus)
}

func TestCheckItemsEdit(t *testing.T) {
	confirmed := *newItem("10")
	confirmed.WarehouseConfirm = &model.WarehouseConfirm{Value: model.ConfirmValue{Kind: model.ConfirmNumeric, Raw: "10"}}
	plain := *newItem("5")
	current := []model.Item{confirmed, plain}

	keep := func(it model.Item, wh model.Warehouse) model.ItemInput {
		id := it.ID
		return model.ItemInput{ID: &id, ProductName: it.ProductName, Quantity: it.Quantity, Warehouse: wh}
	}

	tests := []struct {
		name    string
		next    []model.ItemInput
		wantErr bool
	}{
		{name: "drop unconfirmed item", next: []model.ItemInput{keep(confirmed, model.WarehouseK01)}},
		{name: "add new item", next: []model.ItemInput{keep(confirmed, model.WarehouseK01), keep(plain, model.WarehouseK03), {ProductName: "Thép", Warehouse: model.WarehouseK02}}},
		{name: "drop confirmed item", next: []model.ItemInput{keep(plain, model.WarehouseK01)}, wantErr: true},
		{name: "move confirmed item", next: []model.ItemInput{keep(confirmed, model.WarehouseK02), keep(plain, model.WarehouseK01)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckItemsEdit(current, tt.next)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, model.ErrPreconditionFailed))
				return
			}
			require.NoError(t, err)
		})
	}
}
