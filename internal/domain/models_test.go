package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialDeliverIsWriteOnce(t *testing.T) {
	c := CredentialRecord{ID: "c1", ProductID: "spotify", Email: "a@b.com", Password: "pw"}

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, c.Deliver("PUR_A", first))
	assert.True(t, c.Delivered)
	assert.Equal(t, "PUR_A", c.PurchaseID)
	require.NotNil(t, c.DeliveredAt)
	assert.Equal(t, first, *c.DeliveredAt)

	err := c.Deliver("PUR_B", first.Add(time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyDelivered)
	assert.Equal(t, "PUR_A", c.PurchaseID)
	assert.Equal(t, first, *c.DeliveredAt)
}

func TestProductAvailableStockIsDerived(t *testing.T) {
	p := Product{
		ID:        "spotify",
		Title:     "Spotify Premium",
		UnitPrice: decimal.RequireFromString("3.99"),
		Credentials: []CredentialRecord{
			{ID: "c1"},
			{ID: "c2", Delivered: true},
			{ID: "c3"},
		},
	}
	assert.Equal(t, 2, p.AvailableStock())

	require.NoError(t, p.Credentials[0].Deliver("PUR_A", time.Now()))
	assert.Equal(t, 1, p.AvailableStock())
}
