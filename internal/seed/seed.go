// Package seed holds the canonical demo catalog and user set. The seeder
// loads it into Postgres; the snapshot store bootstraps from it when its
// backing store is empty.
package seed

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/subvault/subvault/internal/domain"
)

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func cred(id, productID, email, password string) domain.CredentialRecord {
	return domain.CredentialRecord{ID: id, ProductID: productID, Email: email, Password: password}
}

// Products returns the demo catalog with its pre-seeded credential pairs.
// Credential order is delivery order.
func Products() []domain.Product {
	return []domain.Product{
		{
			ID:        "spotify",
			Title:     "Spotify Premium",
			UnitPrice: decimal.RequireFromString("3.99"),
			Credentials: []domain.CredentialRecord{
				cred("sp1", "spotify", "spotify1@premium.com", "SpotifyPass123"),
				cred("sp2", "spotify", "spotify2@premium.com", "SpotifyPass456"),
				cred("sp3", "spotify", "spotify3@premium.com", "SpotifyPass789"),
				cred("sp4", "spotify", "spotify4@premium.com", "SpotifyPass101"),
				cred("sp5", "spotify", "spotify5@premium.com", "SpotifyPass202"),
			},
		},
		{
			ID:        "youtube",
			Title:     "YouTube Premium",
			UnitPrice: decimal.RequireFromString("4.99"),
			Credentials: []domain.CredentialRecord{
				cred("yt1", "youtube", "youtube1@premium.com", "YouTubePass123"),
				cred("yt2", "youtube", "youtube2@premium.com", "YouTubePass456"),
				cred("yt3", "youtube", "youtube3@premium.com", "YouTubePass789"),
			},
		},
		{
			ID:        "disney",
			Title:     "Disney Plus",
			UnitPrice: decimal.RequireFromString("6.99"),
			Credentials: []domain.CredentialRecord{
				cred("dp1", "disney", "disney1@plus.com", "DisneyPass123"),
				cred("dp2", "disney", "disney2@plus.com", "DisneyPass456"),
				cred("dp3", "disney", "disney3@plus.com", "DisneyPass789"),
				cred("dp4", "disney", "disney4@plus.com", "DisneyPass101"),
			},
		},
	}
}

// Users returns the demo users. Authentication is handled elsewhere; the
// core only needs ids, roles and balances.
func Users() []domain.UserAccount {
	return []domain.UserAccount{
		{
			ID:        "1",
			Username:  "admin",
			Email:     "admin@example.com",
			Role:      domain.RoleAdmin,
			Balance:   decimal.RequireFromString("1250.00"),
			CreatedAt: mustDate("2024-01-01"),
		},
		{
			ID:        "2",
			Username:  "john_doe",
			Email:     "john@example.com",
			Role:      domain.RoleUser,
			Balance:   decimal.RequireFromString("15.50"),
			CreatedAt: mustDate("2024-01-02"),
		},
		{
			ID:        "3",
			Username:  "jane_smith",
			Email:     "jane@example.com",
			Role:      domain.RoleUser,
			Balance:   decimal.RequireFromString("0.00"),
			CreatedAt: mustDate("2024-01-03"),
		},
	}
}
