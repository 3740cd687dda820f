// Package store owns the three pieces of persistent state: the credential
// inventory, the user balance ledger, and the purchase history log. Two
// implementations exist: a Postgres store for shared deployments and a
// snapshot store over a byte-level backing store for local runs and tests.
package store

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/subvault/subvault/internal/domain"
)

// Catalog exposes read access to the product listing.
type Catalog interface {
	ListCatalog(ctx context.Context) ([]domain.CatalogEntry, error)
	// GetProduct returns the catalog entry with live stock, or
	// domain.ErrUnknownProduct.
	GetProduct(ctx context.Context, productID string) (domain.CatalogEntry, error)
}

// Inventory owns credential records and their delivery state.
type Inventory interface {
	// AvailableStock counts undelivered credentials for the product.
	// Unknown products are an error, not zero, so callers can tell
	// "no such product" from "sold out".
	AvailableStock(ctx context.Context, productID string) (int, error)

	// Allocate selects the first quantity available records in insertion
	// order, marks them delivered under purchaseID, and returns them.
	// All-or-nothing: on domain.ErrInsufficientStock no record is touched.
	Allocate(ctx context.Context, productID string, quantity int, purchaseID string) ([]domain.CredentialRecord, error)

	// ImportCredentials appends new available records to the end of the
	// product's inventory, assigning each a fresh id.
	ImportCredentials(ctx context.Context, productID string, imports []domain.CredentialImport) ([]domain.CredentialRecord, error)
}

// Ledger owns user balances. All mutations go through Debit and Credit.
type Ledger interface {
	GetUser(ctx context.Context, userID string) (domain.UserAccount, error)
	BalanceOf(ctx context.Context, userID string) (decimal.Decimal, error)

	// Debit subtracts amount and returns the post-debit balance. Fails
	// with domain.ErrInsufficientFunds before any mutation if the balance
	// would go negative.
	Debit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)

	// Credit adds amount and returns the new balance. Used for admin
	// top-ups and for compensating reversals after a failed delivery.
	Credit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
}

// History is the append-only purchase log.
type History interface {
	AppendPurchase(ctx context.Context, record domain.PurchaseRecord) error
	// PurchasesByUser returns the user's purchases newest-first
	// (purchase date descending).
	PurchasesByUser(ctx context.Context, userID string) ([]domain.PurchaseRecord, error)
}

// Store bundles the state owners behind one seam so wiring can swap the
// Postgres and snapshot implementations.
type Store interface {
	Catalog
	Inventory
	Ledger
	History
}
