package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	queryTimeout = 3 * time.Second

	// maxAttempts bounds the internal retry loop for serialization failures.
	maxAttempts = 3

	balanceCacheTTL = time.Minute
)

// Store is the append-only ledger contract. Balance is a fold over the
// account's transactions; mutation is serialized per account.
type Store interface {
	// Append posts a transaction, holding the account lock across the insert.
	Append(ctx context.Context, t Transaction) error

	// AppendIf posts a transaction only if the account balance, computed under
	// the per-account lock, is at least minBalance. Returns
	// ErrInsufficientBalance without appending otherwise.
	AppendIf(ctx context.Context, t Transaction, minBalance int) error

	// AppendTx posts a transaction inside the caller's database transaction.
	// The caller owns commit/rollback and must call InvalidateBalance after
	// a successful commit.
	AppendTx(ctx context.Context, dbtx *sqlx.Tx, t Transaction) error

	BalanceOf(ctx context.Context, accountID uuid.UUID) (int, error)

	// History returns transactions newest first. limit <= 0 returns all rows.
	History(ctx context.Context, accountID uuid.UUID, limit int) ([]Transaction, error)

	InvalidateBalance(ctx context.Context, accountID uuid.UUID)
}

// PostgresStore keeps the ledger in Postgres with an optional Redis cache in
// front of the balance fold. The cache is deleted synchronously on every
// append; balance checks that gate redemption never read it.
type PostgresStore struct {
	db    *sqlx.DB
	cache *redis.Client
}

func NewPostgresStore(db *sqlx.DB, cache *redis.Client) *PostgresStore {
	return &PostgresStore{db: db, cache: cache}
}

func (s *PostgresStore) Append(ctx context.Context, t Transaction) error {
	return s.appendChecked(ctx, t, nil)
}

func (s *PostgresStore) AppendIf(ctx context.Context, t Transaction, minBalance int) error {
	return s.appendChecked(ctx, t, &minBalance)
}

func (s *PostgresStore) appendChecked(ctx context.Context, t Transaction, minBalance *int) error {
	if err := validate(t); err != nil {
		return err
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.appendOnce(ctx2, t, minBalance)
		if !errors.Is(err, ErrConcurrencyConflict) {
			break
		}
		log.Warn().
			Str("account_id", t.AccountID.String()).
			Int("attempt", attempt).
			Msg("ledger append conflict, retrying")
	}
	if errors.Is(err, ErrConcurrencyConflict) {
		return ErrTemporarilyUnavailable
	}
	if err != nil {
		return err
	}

	s.InvalidateBalance(ctx, t.AccountID)
	return nil
}

func (s *PostgresStore) appendOnce(ctx context.Context, t Transaction, minBalance *int) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	if err := s.lockAccount(ctx, tx, t.AccountID); err != nil {
		return classify(err)
	}

	if minBalance != nil {
		balance, err := foldBalance(ctx, tx, t.AccountID)
		if err != nil {
			return classify(err)
		}
		if balance < *minBalance {
			return ErrInsufficientBalance
		}
	}

	if err := insertTransaction(ctx, tx, t); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// AppendTx posts inside the caller's transaction. The account lock is still
// taken so the append serializes with direct Append/AppendIf calls.
func (s *PostgresStore) AppendTx(ctx context.Context, dbtx *sqlx.Tx, t Transaction) error {
	if err := validate(t); err != nil {
		return err
	}
	if err := s.lockAccount(ctx, dbtx, t.AccountID); err != nil {
		return classify(err)
	}
	if err := insertTransaction(ctx, dbtx, t); err != nil {
		return classify(err)
	}
	return nil
}

func (s *PostgresStore) BalanceOf(ctx context.Context, accountID uuid.UUID) (int, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, balanceKey(accountID)).Result(); err == nil {
			if balance, err := strconv.Atoi(cached); err == nil {
				return balance, nil
			}
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int
	err := s.db.GetContext(ctx2, &balance, `
		SELECT COALESCE(SUM(points), 0)
		FROM loyalty_transactions
		WHERE account_id = $1
	`, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: balance fold", ErrInternal)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, balanceKey(accountID), balance, balanceCacheTTL).Err(); err != nil {
			log.Warn().Err(err).Msg("balance cache set failed")
		}
	}
	return balance, nil
}

func (s *PostgresStore) History(ctx context.Context, accountID uuid.UUID, limit int) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, account_id, kind, points, description, related_order_id, created_at
		FROM loyalty_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []interface{}{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	transactions := make([]Transaction, 0)
	if err := s.db.SelectContext(ctx2, &transactions, query, args...); err != nil {
		return nil, fmt.Errorf("%w: history", ErrInternal)
	}
	return transactions, nil
}

// InvalidateBalance drops the cached balance. Best effort: a failed delete is
// logged, not returned, because the cache expires on its own and gating reads
// go to the database.
func (s *PostgresStore) InvalidateBalance(ctx context.Context, accountID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, balanceKey(accountID)).Err(); err != nil {
		log.Warn().Err(err).Str("account_id", accountID.String()).Msg("balance cache invalidation failed")
	}
}

// lockAccount creates the account anchor row on first use and takes its row
// lock, serializing the check-then-append sequence per account.
func (s *PostgresStore) lockAccount(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_accounts (account_id)
		VALUES ($1)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID); err != nil {
		return err
	}

	var locked uuid.UUID
	return tx.GetContext(ctx, &locked, `
		SELECT account_id FROM loyalty_accounts WHERE account_id = $1 FOR UPDATE
	`, accountID)
}

func foldBalance(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID) (int, error) {
	var balance int
	err := tx.GetContext(ctx, &balance, `
		SELECT COALESCE(SUM(points), 0)
		FROM loyalty_transactions
		WHERE account_id = $1
	`, accountID)
	return balance, err
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, t Transaction) error {
	id := t.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_transactions (id, account_id, kind, points, description, related_order_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, t.AccountID, string(t.Kind), t.Points, t.Description, t.RelatedOrderID)
	return err
}

func validate(t Transaction) error {
	if t.Points == 0 {
		return fmt.Errorf("%w: zero points", ErrInvalidTransaction)
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTransaction, t.Kind)
	}
	if t.AccountID == uuid.Nil {
		return fmt.Errorf("%w: missing account", ErrInvalidTransaction)
	}
	return nil
}

// classify maps Postgres serialization and deadlock failures to the retryable
// conflict sentinel; everything else is wrapped as internal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "40001" || pqErr.Code == "40P01" {
			return ErrConcurrencyConflict
		}
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

func balanceKey(accountID uuid.UUID) string {
	return "loyalty:balance:" + accountID.String()
}
