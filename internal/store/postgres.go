package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/subvault/subvault/internal/domain"
)

// PostgresStore implements Store on a pgx connection pool. Allocation runs
// inside a transaction that locks the product row, so two concurrent
// purchases of the same product can never consume the same credential.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad numeric value %q: %w", raw, err)
	}
	return d, nil
}

func (s *PostgresStore) ListCatalog(ctx context.Context) ([]domain.CatalogEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.title, p.unit_price::text,
		       (SELECT count(*) FROM credentials c
		         WHERE c.product_id = p.id AND NOT c.delivered)
		FROM products p
		ORDER BY p.seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CatalogEntry
	for rows.Next() {
		var e domain.CatalogEntry
		var price string
		if err := rows.Scan(&e.ID, &e.Title, &price, &e.AvailableStock); err != nil {
			return nil, err
		}
		if e.UnitPrice, err = parseDecimal(price); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) GetProduct(ctx context.Context, productID string) (domain.CatalogEntry, error) {
	var e domain.CatalogEntry
	var price string
	err := s.db.QueryRow(ctx, `
		SELECT p.id, p.title, p.unit_price::text,
		       (SELECT count(*) FROM credentials c
		         WHERE c.product_id = p.id AND NOT c.delivered)
		FROM products p WHERE p.id = $1`, productID).
		Scan(&e.ID, &e.Title, &price, &e.AvailableStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CatalogEntry{}, domain.ErrUnknownProduct
	}
	if err != nil {
		return domain.CatalogEntry{}, err
	}
	if e.UnitPrice, err = parseDecimal(price); err != nil {
		return domain.CatalogEntry{}, err
	}
	return e, nil
}

func (s *PostgresStore) AvailableStock(ctx context.Context, productID string) (int, error) {
	var exists bool
	if err := s.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", productID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, domain.ErrUnknownProduct
	}

	var count int
	err := s.db.QueryRow(ctx,
		"SELECT count(*) FROM credentials WHERE product_id = $1 AND NOT delivered",
		productID).Scan(&count)
	return count, err
}

// Allocate locks the product row, selects the oldest available credentials
// and marks them delivered, all in one transaction. Concurrent allocations
// against the same product serialize on the product lock.
func (s *PostgresStore) Allocate(ctx context.Context, productID string, quantity int, purchaseID string) ([]domain.CredentialRecord, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked string
	err = tx.QueryRow(ctx, "SELECT id FROM products WHERE id = $1 FOR UPDATE", productID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUnknownProduct
	}
	if err != nil {
		return nil, fmt.Errorf("product lock failed: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, email, password
		FROM credentials
		WHERE product_id = $1 AND NOT delivered
		ORDER BY seq
		LIMIT $2`, productID, quantity)
	if err != nil {
		return nil, err
	}

	var delivered []domain.CredentialRecord
	var ids []string
	for rows.Next() {
		var c domain.CredentialRecord
		if err := rows.Scan(&c.ID, &c.Email, &c.Password); err != nil {
			rows.Close()
			return nil, err
		}
		c.ProductID = productID
		delivered = append(delivered, c)
		ids = append(ids, c.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(delivered) < quantity {
		return nil, domain.ErrInsufficientStock
	}

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE credentials
		SET delivered = TRUE, purchase_id = $1, delivered_at = $2
		WHERE id = ANY($3) AND NOT delivered`,
		purchaseID, now, ids)
	if err != nil {
		return nil, fmt.Errorf("delivery update failed: %w", err)
	}
	if int(tag.RowsAffected()) != quantity {
		return nil, domain.ErrAllocationConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	for i := range delivered {
		delivered[i].Delivered = true
		delivered[i].PurchaseID = purchaseID
		at := now
		delivered[i].DeliveredAt = &at
	}
	return delivered, nil
}

func (s *PostgresStore) ImportCredentials(ctx context.Context, productID string, imports []domain.CredentialImport) ([]domain.CredentialRecord, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", productID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrUnknownProduct
	}

	added := make([]domain.CredentialRecord, 0, len(imports))
	for _, imp := range imports {
		c := domain.CredentialRecord{
			ID:        newCredentialID(),
			ProductID: productID,
			Email:     imp.Email,
			Password:  imp.Password,
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO credentials (id, product_id, email, password) VALUES ($1, $2, $3, $4)",
			c.ID, c.ProductID, c.Email, c.Password); err != nil {
			return nil, fmt.Errorf("credential insert failed: %w", err)
		}
		added = append(added, c)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return added, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (domain.UserAccount, error) {
	var u domain.UserAccount
	var balance string
	err := s.db.QueryRow(ctx,
		"SELECT id, username, email, role, balance::text, created_at FROM users WHERE id = $1",
		userID).Scan(&u.ID, &u.Username, &u.Email, &u.Role, &balance, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserAccount{}, domain.ErrUnknownUser
	}
	if err != nil {
		return domain.UserAccount{}, err
	}
	if u.Balance, err = parseDecimal(balance); err != nil {
		return domain.UserAccount{}, err
	}
	return u, nil
}

func (s *PostgresStore) BalanceOf(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balance string
	err := s.db.QueryRow(ctx, "SELECT balance::text FROM users WHERE id = $1", userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, domain.ErrUnknownUser
	}
	if err != nil {
		return decimal.Zero, err
	}
	return parseDecimal(balance)
}

// Debit is a single conditional update: the balance check and the
// subtraction happen in one statement, so no overdraft window exists.
func (s *PostgresStore) Debit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}

	var balance string
	err := s.db.QueryRow(ctx, `
		UPDATE users SET balance = balance - $1::numeric
		WHERE id = $2 AND balance >= $1::numeric
		RETURNING balance::text`,
		amount.String(), userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := s.db.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists); err != nil {
			return decimal.Zero, err
		}
		if !exists {
			return decimal.Zero, domain.ErrUnknownUser
		}
		return decimal.Zero, domain.ErrInsufficientFunds
	}
	if err != nil {
		return decimal.Zero, err
	}
	return parseDecimal(balance)
}

func (s *PostgresStore) Credit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}

	var balance string
	err := s.db.QueryRow(ctx, `
		UPDATE users SET balance = balance + $1::numeric
		WHERE id = $2
		RETURNING balance::text`,
		amount.String(), userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, domain.ErrUnknownUser
	}
	if err != nil {
		return decimal.Zero, err
	}
	return parseDecimal(balance)
}

func (s *PostgresStore) AppendPurchase(ctx context.Context, record domain.PurchaseRecord) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO purchases (id, user_id, product_id, product_title, quantity,
		                       unit_price, total_price, purchase_date, status)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)`,
		record.ID, record.UserID, record.ProductID, record.ProductTitle, record.Quantity,
		record.UnitPrice.String(), record.TotalPrice.String(), record.PurchaseDate, record.Status)
	if err != nil {
		return fmt.Errorf("purchase insert failed: %w", err)
	}

	for i, c := range record.Credentials {
		_, err = tx.Exec(ctx, `
			INSERT INTO purchase_credentials (purchase_id, seq, credential_id, email, password, delivered_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			record.ID, i, c.ID, c.Email, c.Password, c.DeliveredAt)
		if err != nil {
			return fmt.Errorf("purchase credential insert failed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) PurchasesByUser(ctx context.Context, userID string) ([]domain.PurchaseRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.product_id, p.product_title, p.quantity,
		       p.unit_price::text, p.total_price::text, p.purchase_date, p.status,
		       c.credential_id, c.email, c.password, c.delivered_at
		FROM purchases p
		JOIN purchase_credentials c ON c.purchase_id = p.id
		WHERE p.user_id = $1
		ORDER BY p.purchase_date DESC, p.id, c.seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PurchaseRecord
	for rows.Next() {
		var (
			rec                  domain.PurchaseRecord
			unitPrice, totPrice  string
			cred                 domain.DeliveredCredential
		)
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.ProductTitle, &rec.Quantity,
			&unitPrice, &totPrice, &rec.PurchaseDate, &rec.Status,
			&cred.ID, &cred.Email, &cred.Password, &cred.DeliveredAt); err != nil {
			return nil, err
		}

		if len(out) > 0 && out[len(out)-1].ID == rec.ID {
			out[len(out)-1].Credentials = append(out[len(out)-1].Credentials, cred)
			continue
		}

		rec.UserID = userID
		if rec.UnitPrice, err = parseDecimal(unitPrice); err != nil {
			return nil, err
		}
		if rec.TotalPrice, err = parseDecimal(totPrice); err != nil {
			return nil, err
		}
		rec.Credentials = []domain.DeliveredCredential{cred}
		out = append(out, rec)
	}
	return out, rows.Err()
}
