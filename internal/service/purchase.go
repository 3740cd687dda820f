package service

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/subvault/subvault/internal/domain"
	"github.com/subvault/subvault/internal/store"
	"go.uber.org/zap"
)

// PurchaseService coordinates a purchase across the catalog, the ledger,
// the delivery engine and the history log. It holds no state of its own.
type PurchaseService struct {
	catalog  store.Catalog
	ledger   store.Ledger
	delivery DeliveryEngine
	history  store.History
	logger   *zap.Logger
}

func NewPurchaseService(catalog store.Catalog, ledger store.Ledger, delivery DeliveryEngine, history store.History, logger *zap.Logger) *PurchaseService {
	return &PurchaseService{
		catalog:  catalog,
		ledger:   ledger,
		delivery: delivery,
		history:  history,
		logger:   logger,
	}
}

// newPurchaseID returns a time-ordered purchase id. The PUR_ prefix keeps
// ids recognizable in history listings and logs.
func newPurchaseID() string {
	return "PUR_" + ulid.Make().String()
}

// Purchase validates the request, debits the buyer, delivers the
// credentials and records the result.
//
// All preconditions (known product, positive quantity, stock, funds) are
// checked before any mutation. If delivery fails after the debit the
// service credits the full amount back and reports an allocation conflict;
// the caller may retry.
func (s *PurchaseService) Purchase(ctx context.Context, userID, productID string, quantity int) (*domain.PurchaseRecord, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	totalPrice := product.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))

	if product.AvailableStock < quantity {
		return nil, domain.ErrInsufficientStock
	}

	balance, err := s.ledger.BalanceOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(totalPrice) {
		return nil, domain.ErrInsufficientFunds
	}

	purchaseID := newPurchaseID()

	if _, err := s.ledger.Debit(ctx, userID, totalPrice); err != nil {
		return nil, err
	}

	credentials, err := s.delivery.Deliver(ctx, productID, quantity, purchaseID)
	if err != nil {
		// Debited but undelivered: reverse the debit before surfacing.
		if _, creditErr := s.ledger.Credit(ctx, userID, totalPrice); creditErr != nil {
			s.logger.Error("compensating credit failed",
				zap.String("purchase_id", purchaseID),
				zap.String("user_id", userID),
				zap.String("amount", totalPrice.String()),
				zap.Error(creditErr))
			return nil, creditErr
		}
		s.logger.Warn("delivery failed after debit, debit reversed",
			zap.String("purchase_id", purchaseID),
			zap.String("product_id", productID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrAllocationConflict, err)
	}

	record := domain.PurchaseRecord{
		ID:           purchaseID,
		UserID:       userID,
		ProductID:    productID,
		ProductTitle: product.Title,
		Quantity:     quantity,
		UnitPrice:    product.UnitPrice,
		TotalPrice:   totalPrice,
		PurchaseDate: time.Now().UTC(),
		Status:       domain.PurchaseStatusCompleted,
		Credentials:  snapshotCredentials(credentials),
	}

	if err := s.history.AppendPurchase(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("purchase completed",
		zap.String("purchase_id", purchaseID),
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
		zap.String("total_price", totalPrice.String()))

	return &record, nil
}

// snapshotCredentials copies the delivered records into the history shape.
// The log keeps these copies so later inventory changes never rewrite a
// buyer's receipt.
func snapshotCredentials(records []domain.CredentialRecord) []domain.DeliveredCredential {
	out := make([]domain.DeliveredCredential, 0, len(records))
	for _, r := range records {
		var at time.Time
		if r.DeliveredAt != nil {
			at = *r.DeliveredAt
		}
		out = append(out, domain.DeliveredCredential{
			ID:          r.ID,
			Email:       r.Email,
			Password:    r.Password,
			DeliveredAt: at,
		})
	}
	return out
}
