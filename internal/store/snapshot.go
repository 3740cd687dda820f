package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/subvault/subvault/internal/domain"
	"go.uber.org/zap"
)

const (
	keyCatalog   = "catalog"
	keyUsers     = "users"
	keyPurchases = "purchases"
)

// SnapshotStore keeps the full state in memory and persists JSON snapshots
// through a Backend after every mutation. A single mutex serializes all
// access, so a purchase never observes a half-applied allocation. Mutations
// are committed to memory only after the snapshot write succeeds, keeping
// memory and durable state in step.
type SnapshotStore struct {
	mu      sync.Mutex
	backend Backend
	logger  *zap.Logger

	products  []domain.Product
	users     []domain.UserAccount
	purchases []domain.PurchaseRecord
}

func NewSnapshotStore(backend Backend, logger *zap.Logger) (*SnapshotStore, error) {
	s := &SnapshotStore{backend: backend, logger: logger}
	if err := s.load(keyCatalog, &s.products); err != nil {
		return nil, err
	}
	if err := s.load(keyUsers, &s.users); err != nil {
		return nil, err
	}
	if err := s.load(keyPurchases, &s.purchases); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SnapshotStore) load(key string, dst any) error {
	raw, err := s.backend.Load(key)
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", domain.ErrPersistence, key, err)
	}
	if raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrPersistence, key, err)
	}
	return nil
}

func (s *SnapshotStore) persist(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrPersistence, key, err)
	}
	if err := s.backend.Save(key, raw); err != nil {
		return fmt.Errorf("%w: save %s: %v", domain.ErrPersistence, key, err)
	}
	return nil
}

// Bootstrap seeds the catalog and user set when the backing store is empty.
// A store that already has products is left alone.
func (s *SnapshotStore) Bootstrap(products []domain.Product, users []domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.products) > 0 {
		return nil
	}
	if err := s.persist(keyCatalog, products); err != nil {
		return err
	}
	if err := s.persist(keyUsers, users); err != nil {
		return err
	}
	s.products = products
	s.users = users
	s.logger.Info("seeded snapshot store",
		zap.Int("products", len(products)),
		zap.Int("users", len(users)))
	return nil
}

func (s *SnapshotStore) productIndex(productID string) int {
	for i := range s.products {
		if s.products[i].ID == productID {
			return i
		}
	}
	return -1
}

func (s *SnapshotStore) userIndex(userID string) int {
	for i := range s.users {
		if s.users[i].ID == userID {
			return i
		}
	}
	return -1
}

func (s *SnapshotStore) ListCatalog(ctx context.Context) ([]domain.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]domain.CatalogEntry, 0, len(s.products))
	for i := range s.products {
		p := &s.products[i]
		entries = append(entries, domain.CatalogEntry{
			ID:             p.ID,
			Title:          p.Title,
			UnitPrice:      p.UnitPrice,
			AvailableStock: p.AvailableStock(),
		})
	}
	return entries, nil
}

func (s *SnapshotStore) GetProduct(ctx context.Context, productID string) (domain.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.productIndex(productID)
	if i < 0 {
		return domain.CatalogEntry{}, domain.ErrUnknownProduct
	}
	p := &s.products[i]
	return domain.CatalogEntry{
		ID:             p.ID,
		Title:          p.Title,
		UnitPrice:      p.UnitPrice,
		AvailableStock: p.AvailableStock(),
	}, nil
}

func (s *SnapshotStore) AvailableStock(ctx context.Context, productID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.productIndex(productID)
	if i < 0 {
		return 0, domain.ErrUnknownProduct
	}
	return s.products[i].AvailableStock(), nil
}

// Allocate delivers the first quantity available credentials in insertion
// order. The modified product is persisted before the in-memory state is
// swapped, so a failed save leaves nothing allocated.
func (s *SnapshotStore) Allocate(ctx context.Context, productID string, quantity int, purchaseID string) ([]domain.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	idx := s.productIndex(productID)
	if idx < 0 {
		return nil, domain.ErrUnknownProduct
	}
	p := s.products[idx]
	if p.AvailableStock() < quantity {
		return nil, domain.ErrInsufficientStock
	}

	now := time.Now().UTC()
	creds := make([]domain.CredentialRecord, len(p.Credentials))
	copy(creds, p.Credentials)

	delivered := make([]domain.CredentialRecord, 0, quantity)
	for i := range creds {
		if len(delivered) == quantity {
			break
		}
		if creds[i].Delivered {
			continue
		}
		if err := creds[i].Deliver(purchaseID, now); err != nil {
			return nil, err
		}
		delivered = append(delivered, creds[i])
	}

	products := make([]domain.Product, len(s.products))
	copy(products, s.products)
	updated := p
	updated.Credentials = creds
	products[idx] = updated

	if err := s.persist(keyCatalog, products); err != nil {
		return nil, err
	}
	s.products = products
	return delivered, nil
}

func (s *SnapshotStore) ImportCredentials(ctx context.Context, productID string, imports []domain.CredentialImport) ([]domain.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.productIndex(productID)
	if idx < 0 {
		return nil, domain.ErrUnknownProduct
	}
	p := s.products[idx]

	added := make([]domain.CredentialRecord, 0, len(imports))
	for _, imp := range imports {
		added = append(added, domain.CredentialRecord{
			ID:        newCredentialID(),
			ProductID: productID,
			Email:     imp.Email,
			Password:  imp.Password,
		})
	}

	creds := make([]domain.CredentialRecord, 0, len(p.Credentials)+len(added))
	creds = append(creds, p.Credentials...)
	creds = append(creds, added...)

	products := make([]domain.Product, len(s.products))
	copy(products, s.products)
	updated := p
	updated.Credentials = creds
	products[idx] = updated

	if err := s.persist(keyCatalog, products); err != nil {
		return nil, err
	}
	s.products = products
	return added, nil
}

func (s *SnapshotStore) GetUser(ctx context.Context, userID string) (domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.userIndex(userID)
	if i < 0 {
		return domain.UserAccount{}, domain.ErrUnknownUser
	}
	return s.users[i], nil
}

func (s *SnapshotStore) BalanceOf(ctx context.Context, userID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.userIndex(userID)
	if i < 0 {
		return decimal.Zero, domain.ErrUnknownUser
	}
	return s.users[i].Balance, nil
}

func (s *SnapshotStore) Debit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	return s.adjustBalance(userID, amount.Neg())
}

func (s *SnapshotStore) Credit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	return s.adjustBalance(userID, amount)
}

func (s *SnapshotStore) adjustBalance(userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.userIndex(userID)
	if i < 0 {
		return decimal.Zero, domain.ErrUnknownUser
	}
	next := s.users[i].Balance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, domain.ErrInsufficientFunds
	}

	users := make([]domain.UserAccount, len(s.users))
	copy(users, s.users)
	users[i].Balance = next

	if err := s.persist(keyUsers, users); err != nil {
		return decimal.Zero, err
	}
	s.users = users
	return next, nil
}

func (s *SnapshotStore) AppendPurchase(ctx context.Context, record domain.PurchaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyPurchase(record)
	purchases := make([]domain.PurchaseRecord, 0, len(s.purchases)+1)
	purchases = append(purchases, s.purchases...)
	purchases = append(purchases, stored)

	if err := s.persist(keyPurchases, purchases); err != nil {
		return err
	}
	s.purchases = purchases
	return nil
}

// PurchasesByUser returns the user's purchases newest-first. The log is
// appended in chronological order, so walking it backwards gives purchase
// date descending.
func (s *SnapshotStore) PurchasesByUser(ctx context.Context, userID string) ([]domain.PurchaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.PurchaseRecord
	for i := len(s.purchases) - 1; i >= 0; i-- {
		if s.purchases[i].UserID == userID {
			out = append(out, copyPurchase(s.purchases[i]))
		}
	}
	return out, nil
}

// copyPurchase clones the credential snapshot so callers and the log never
// share a slice.
func copyPurchase(r domain.PurchaseRecord) domain.PurchaseRecord {
	creds := make([]domain.DeliveredCredential, len(r.Credentials))
	copy(creds, r.Credentials)
	r.Credentials = creds
	return r
}
