package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointledger/pointledger/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Store on a pgx pool. Per-account serializability
// comes from row locks taken in lexicographic address order inside a
// transaction, so two operations touching the same pair of accounts in
// opposite order cannot deadlock.
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
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if err := runMigrations(connString); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{db: pool}, nil
}

func runMigrations(connString string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	url := connString
	if rest, ok := strings.CutPrefix(url, "postgresql://"); ok {
		url = "pgx5://" + rest
	} else if rest, ok := strings.CutPrefix(url, "postgres://"); ok {
		url = "pgx5://" + rest
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) GetAccount(ctx context.Context, address string) (*models.Account, error) {
	var points int64
	err := s.db.QueryRow(ctx, "SELECT points FROM accounts WHERE address = $1", address).Scan(&points)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &models.Account{Address: address, Points: points}, nil
}

func (s *PostgresStore) GetOrCreateAccount(ctx context.Context, address string) (*models.Account, error) {
	var points int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO accounts (address, points) VALUES ($1, 0)
		 ON CONFLICT (address) DO UPDATE SET points = accounts.points
		 RETURNING points`,
		address).Scan(&points)
	if err != nil {
		return nil, fmt.Errorf("get or create account: %w", err)
	}
	return &models.Account{Address: address, Points: points}, nil
}

func (s *PostgresStore) ApplyDelta(ctx context.Context, address string, delta int64) (*models.Account, error) {
	var points int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO accounts (address, points) VALUES ($1, $2)
		 ON CONFLICT (address) DO UPDATE SET points = accounts.points + $2
		 RETURNING points`,
		address, delta).Scan(&points)
	if isBalanceViolation(err) {
		return nil, models.ErrInsufficientFunds
	}
	if err != nil {
		return nil, fmt.Errorf("apply delta: %w", err)
	}
	return &models.Account{Address: address, Points: points}, nil
}

func (s *PostgresStore) Transfer(ctx context.Context, sender, recipient string, amount int64) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// Recipient accounts are created on first reference.
	if _, err := tx.Exec(ctx,
		"INSERT INTO accounts (address, points) VALUES ($1, 0) ON CONFLICT (address) DO NOTHING",
		recipient); err != nil {
		return fmt.Errorf("ensure recipient: %w", err)
	}

	balances, found, err := lockAccounts(ctx, tx, sender, recipient)
	if err != nil {
		return err
	}
	if !found[sender] {
		return models.ErrAccountNotFound
	}
	if balances[sender] < amount {
		return models.ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		"UPDATE accounts SET points = points - $1 WHERE address = $2", amount, sender); err != nil {
		if isBalanceViolation(err) {
			return models.ErrInsufficientFunds
		}
		return fmt.Errorf("debit sender: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"UPDATE accounts SET points = points + $1 WHERE address = $2", amount, recipient); err != nil {
		return fmt.Errorf("credit recipient: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePaymentRequest(ctx context.Context, creditorKey, debtorKey string, amount int64) (*models.PaymentRequest, error) {
	req := models.PaymentRequest{
		CreditorKey: creditorKey,
		DebtorKey:   debtorKey,
		Amount:      amount,
		Status:      models.RequestStatusPending,
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO payment_requests (creditor_key, debtor_key, amount, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		creditorKey, debtorKey, amount, models.RequestStatusPending).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create payment request: %w", err)
	}
	return &req, nil
}

func (s *PostgresStore) GetPaymentRequest(ctx context.Context, id int64) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	err := s.db.QueryRow(ctx,
		`SELECT id, creditor_key, debtor_key, amount, status, created_at
		 FROM payment_requests WHERE id = $1`,
		id).Scan(&req.ID, &req.CreditorKey, &req.DebtorKey, &req.Amount, &req.Status, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment request: %w", err)
	}
	return &req, nil
}

func (s *PostgresStore) SettlePaymentRequest(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var creditor, debtor, status string
	var amount int64
	err = tx.QueryRow(ctx,
		`SELECT creditor_key, debtor_key, amount, status
		 FROM payment_requests WHERE id = $1 FOR UPDATE`,
		id).Scan(&creditor, &debtor, &amount, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrRequestNotFound
	}
	if err != nil {
		return fmt.Errorf("lock payment request: %w", err)
	}
	if status != models.RequestStatusPending {
		return models.ErrRequestConflict
	}

	balances, found, err := lockAccounts(ctx, tx, debtor, creditor)
	if err != nil {
		return err
	}
	// Funds before creditor existence, matching the service's stated order.
	// An absent debtor holds zero points.
	if !found[debtor] || balances[debtor] < amount {
		return models.ErrInsufficientFunds
	}
	if !found[creditor] {
		return models.ErrAccountNotFound
	}

	if _, err := tx.Exec(ctx,
		"UPDATE accounts SET points = points - $1 WHERE address = $2", amount, debtor); err != nil {
		if isBalanceViolation(err) {
			return models.ErrInsufficientFunds
		}
		return fmt.Errorf("debit debtor: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"UPDATE accounts SET points = points + $1 WHERE address = $2", amount, creditor); err != nil {
		return fmt.Errorf("credit creditor: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"UPDATE payment_requests SET status = $1 WHERE id = $2",
		models.RequestStatusAccepted, id); err != nil {
		return fmt.Errorf("mark accepted: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// lockAccounts acquires FOR UPDATE row locks on both addresses in
// lexicographic order and reports each address's balance and presence.
func lockAccounts(ctx context.Context, tx pgx.Tx, a, b string) (map[string]int64, map[string]bool, error) {
	first, second := a, b
	if first > second {
		first, second = second, first
	}

	balances := make(map[string]int64, 2)
	found := make(map[string]bool, 2)
	for _, addr := range []string{first, second} {
		var points int64
		err := tx.QueryRow(ctx,
			"SELECT points FROM accounts WHERE address = $1 FOR UPDATE", addr).Scan(&points)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("lock acquisition failed: %w", err)
		}
		balances[addr] = points
		found[addr] = true
	}
	return balances, found, nil
}

// isBalanceViolation reports whether err is the accounts.points >= 0 CHECK
// constraint firing.
func isBalanceViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}
