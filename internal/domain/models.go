package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role controls access to the admin-only operations (credit, import).
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// UserAccount represents a storefront user and their spendable balance.
type UserAccount struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Role      Role            `json:"role"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// CredentialRecord is one sellable credential pair in the inventory.
// Delivery is a write-once transition: once Delivered is set, PurchaseID
// and DeliveredAt are fixed forever.
type CredentialRecord struct {
	ID          string     `json:"id"`
	ProductID   string     `json:"product_id"`
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	Delivered   bool       `json:"delivered"`
	PurchaseID  string     `json:"purchase_id,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// Deliver marks the record as delivered to the given purchase. It refuses
// to reassign a record that was already delivered.
func (c *CredentialRecord) Deliver(purchaseID string, at time.Time) error {
	if c.Delivered {
		return ErrAlreadyDelivered
	}
	c.Delivered = true
	c.PurchaseID = purchaseID
	c.DeliveredAt = &at
	return nil
}

// Product is a catalog entry plus its ordered credential inventory.
// Credential order is insertion order and doubles as delivery priority.
type Product struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	UnitPrice   decimal.Decimal    `json:"unit_price"`
	Credentials []CredentialRecord `json:"credentials"`
}

// AvailableStock counts the undelivered credentials. Always derived from
// the live records, never a cached counter.
func (p *Product) AvailableStock() int {
	n := 0
	for i := range p.Credentials {
		if !p.Credentials[i].Delivered {
			n++
		}
	}
	return n
}

// CatalogEntry is the read-model view of a product for listings.
type CatalogEntry struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	AvailableStock int             `json:"available_stock"`
}

// CredentialImport is the admin upload payload for new inventory.
type CredentialImport struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// DeliveredCredential is a point-in-time snapshot of a credential as it was
// handed to the buyer. Purchase history keeps these copies, not references
// to the live inventory records.
type DeliveredCredential struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Password    string    `json:"password"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// PurchaseStatusCompleted is the only persisted status; rejected purchases
// never reach the history log.
const PurchaseStatusCompleted = "completed"

// PurchaseRecord is the immutable record of a completed purchase.
// TotalPrice is fixed at purchase time and does not track later catalog
// price changes.
type PurchaseRecord struct {
	ID           string                `json:"id"`
	UserID       string                `json:"user_id"`
	ProductID    string                `json:"product_id"`
	ProductTitle string                `json:"product_title"`
	Quantity     int                   `json:"quantity"`
	UnitPrice    decimal.Decimal       `json:"unit_price"`
	TotalPrice   decimal.Decimal       `json:"total_price"`
	PurchaseDate time.Time             `json:"purchase_date"`
	Status       string                `json:"status"`
	Credentials  []DeliveredCredential `json:"delivered_credentials"`
}
