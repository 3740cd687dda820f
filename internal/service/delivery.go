package service

import (
	"context"

	"github.com/subvault/subvault/internal/domain"
	"github.com/subvault/subvault/internal/store"
)

// DeliveryEngine hands credentials to a purchase. The default engine just
// allocates from inventory in insertion order; alternative policies
// (priority tiers, reservation holds) slot in behind this interface without
// touching the orchestrator.
type DeliveryEngine interface {
	Deliver(ctx context.Context, productID string, quantity int, purchaseID string) ([]domain.CredentialRecord, error)
}

type inventoryDelivery struct {
	inventory store.Inventory
}

// NewDeliveryEngine returns the first-available-first-delivered engine.
func NewDeliveryEngine(inventory store.Inventory) DeliveryEngine {
	return &inventoryDelivery{inventory: inventory}
}

func (d *inventoryDelivery) Deliver(ctx context.Context, productID string, quantity int, purchaseID string) ([]domain.CredentialRecord, error) {
	return d.inventory.Allocate(ctx, productID, quantity, purchaseID)
}
