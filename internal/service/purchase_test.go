package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subvault/subvault/internal/domain"
	"github.com/subvault/subvault/internal/store"
	"go.uber.org/zap"
)

func seededStore(t *testing.T) *store.SnapshotStore {
	t.Helper()
	s, err := store.NewSnapshotStore(store.NewMemoryBackend(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Bootstrap(
		[]domain.Product{
			{
				ID:        "spotify",
				Title:     "Spotify Premium",
				UnitPrice: decimal.RequireFromString("3.99"),
				Credentials: []domain.CredentialRecord{
					{ID: "sp1", ProductID: "spotify", Email: "spotify1@premium.com", Password: "pw1"},
					{ID: "sp2", ProductID: "spotify", Email: "spotify2@premium.com", Password: "pw2"},
					{ID: "sp3", ProductID: "spotify", Email: "spotify3@premium.com", Password: "pw3"},
					{ID: "sp4", ProductID: "spotify", Email: "spotify4@premium.com", Password: "pw4"},
					{ID: "sp5", ProductID: "spotify", Email: "spotify5@premium.com", Password: "pw5"},
				},
			},
		},
		[]domain.UserAccount{
			{ID: "u1", Username: "buyer", Role: domain.RoleUser, Balance: decimal.RequireFromString("10.00")},
			{ID: "u2", Username: "broke", Role: domain.RoleUser, Balance: decimal.RequireFromString("1.00")},
		},
	))
	return s
}

func newService(s *store.SnapshotStore) *PurchaseService {
	return NewPurchaseService(s, s, NewDeliveryEngine(s), s, zap.NewNop())
}

func TestPurchaseHappyPath(t *testing.T) {
	s := seededStore(t)
	svc := newService(s)
	ctx := context.Background()

	record, err := svc.Purchase(ctx, "u1", "spotify", 2)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(record.ID, "PUR_"))
	assert.Equal(t, "u1", record.UserID)
	assert.Equal(t, "spotify", record.ProductID)
	assert.Equal(t, "Spotify Premium", record.ProductTitle)
	assert.Equal(t, 2, record.Quantity)
	assert.Equal(t, "3.99", record.UnitPrice.String())
	assert.Equal(t, "7.98", record.TotalPrice.String())
	assert.Equal(t, domain.PurchaseStatusCompleted, record.Status)

	require.Len(t, record.Credentials, 2)
	assert.Equal(t, "sp1", record.Credentials[0].ID)
	assert.Equal(t, "sp2", record.Credentials[1].ID)
	assert.False(t, record.Credentials[0].DeliveredAt.IsZero())

	balance, err := s.BalanceOf(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2.02", balance.String())

	stock, err := s.AvailableStock(ctx, "spotify")
	require.NoError(t, err)
	assert.Equal(t, 3, stock)

	history, err := s.PurchasesByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, record.ID, history[0].ID)
}

func TestPurchaseInsufficientStock(t *testing.T) {
	s := seededStore(t)
	svc := newService(s)
	ctx := context.Background()

	_, err := svc.Purchase(ctx, "u1", "spotify", 6)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	balance, _ := s.BalanceOf(ctx, "u1")
	assert.Equal(t, "10", balance.String())
	stock, _ := s.AvailableStock(ctx, "spotify")
	assert.Equal(t, 5, stock)

	history, err := s.PurchasesByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	s := seededStore(t)
	svc := newService(s)
	ctx := context.Background()

	_, err := svc.Purchase(ctx, "u2", "spotify", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	balance, _ := s.BalanceOf(ctx, "u2")
	assert.Equal(t, "1", balance.String())
	stock, _ := s.AvailableStock(ctx, "spotify")
	assert.Equal(t, 5, stock)
}

func TestSequentialPurchasesExhaustStock(t *testing.T) {
	s := seededStore(t)
	svc := newService(s)
	ctx := context.Background()

	// u1 has 10.00: buy 2 (7.98), top up, buy 3.
	_, err := svc.Purchase(ctx, "u1", "spotify", 2)
	require.NoError(t, err)
	_, err = s.Credit(ctx, "u1", decimal.RequireFromString("20.00"))
	require.NoError(t, err)

	_, err = svc.Purchase(ctx, "u1", "spotify", 3)
	require.NoError(t, err)

	stock, err := s.AvailableStock(ctx, "spotify")
	require.NoError(t, err)
	assert.Equal(t, 0, stock)

	_, err = svc.Purchase(ctx, "u1", "spotify", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestPurchaseValidation(t *testing.T) {
	s := seededStore(t)
	svc := newService(s)
	ctx := context.Background()

	_, err := svc.Purchase(ctx, "u1", "spotify", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = svc.Purchase(ctx, "u1", "spotify", -3)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = svc.Purchase(ctx, "u1", "netflix", 1)
	assert.ErrorIs(t, err, domain.ErrUnknownProduct)

	_, err = svc.Purchase(ctx, "nobody", "spotify", 1)
	assert.ErrorIs(t, err, domain.ErrUnknownUser)
}

// conflictDelivery simulates a race where the stock disappears between the
// pre-check and the allocation.
type conflictDelivery struct{}

func (conflictDelivery) Deliver(ctx context.Context, productID string, quantity int, purchaseID string) ([]domain.CredentialRecord, error) {
	return nil, domain.ErrInsufficientStock
}

func TestDeliveryFailureReversesDebit(t *testing.T) {
	s := seededStore(t)
	svc := NewPurchaseService(s, s, conflictDelivery{}, s, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Purchase(ctx, "u1", "spotify", 2)
	assert.ErrorIs(t, err, domain.ErrAllocationConflict)

	// The debit was compensated in full.
	balance, err := s.BalanceOf(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "10", balance.String())

	history, err := s.PurchasesByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

// brokenLedger fails the compensating credit so the orchestrator has to
// surface the ledger error instead of the conflict.
type brokenLedger struct {
	store.Ledger
	creditErr error
}

func (b brokenLedger) Credit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, b.creditErr
}

func TestCompensatingCreditFailureSurfaces(t *testing.T) {
	s := seededStore(t)
	creditErr := errors.New("ledger offline")
	svc := NewPurchaseService(s, brokenLedger{Ledger: s, creditErr: creditErr}, conflictDelivery{}, s, zap.NewNop())

	_, err := svc.Purchase(context.Background(), "u1", "spotify", 1)
	assert.ErrorIs(t, err, creditErr)
}

func TestHistorySnapshotIsDecoupledFromInventory(t *testing.T) {
	s := seededStore(t)
	svc := newService(s)
	ctx := context.Background()

	record, err := svc.Purchase(ctx, "u1", "spotify", 1)
	require.NoError(t, err)

	// Mutating the returned record must not touch the stored history.
	record.Credentials[0].Password = "tampered"

	history, err := s.PurchasesByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "pw1", history[0].Credentials[0].Password)
}
