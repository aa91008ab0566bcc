package referral

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/forkful/loyalty-api/internal/domain/ledger"
)

const queryTimeout = 3 * time.Second

// Repository is the persistence contract for referral codes and referrals.
type Repository interface {
	CodeByAccount(ctx context.Context, accountID uuid.UUID) (*Code, error)
	CodeOwner(ctx context.Context, code string) (uuid.UUID, error)
	InsertCode(ctx context.Context, accountID uuid.UUID, code string) error

	// CreatePending records a pending referral and posts the welcome bonus to
	// the referred account in one transaction. Returns false without posting
	// when the (code, identity) pair was already recorded.
	CreatePending(ctx context.Context, code string, referredAccount uuid.UUID, referredIdentity string) (bool, error)

	// Complete flips the oldest pending referral for the identity to
	// completed and posts the referrer bonus in one transaction. Returns
	// false when nothing was pending; repeat calls post nothing.
	Complete(ctx context.Context, referredIdentity string) (bool, uuid.UUID, error)
}

// ledgerStore is the slice of the ledger store referral writes need: appends
// that share the repository's database transaction.
type ledgerStore interface {
	AppendTx(ctx context.Context, dbtx *sqlx.Tx, t ledger.Transaction) error
	InvalidateBalance(ctx context.Context, accountID uuid.UUID)
}

// PostgresRepository keeps referral state in Postgres. Bonus transactions
// commit atomically with the referral row they belong to.
type PostgresRepository struct {
	db     *sqlx.DB
	ledger ledgerStore
}

func NewPostgresRepository(db *sqlx.DB, l ledgerStore) *PostgresRepository {
	return &PostgresRepository{db: db, ledger: l}
}

func (r *PostgresRepository) CodeByAccount(ctx context.Context, accountID uuid.UUID) (*Code, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var c Code
	err := r.db.GetContext(ctx2, &c, `
		SELECT code, account_id, created_at FROM referral_codes WHERE account_id = $1
	`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: code lookup", ErrInternal)
	}
	return &c, nil
}

func (r *PostgresRepository) CodeOwner(ctx context.Context, code string) (uuid.UUID, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var owner uuid.UUID
	err := r.db.GetContext(ctx2, &owner, `
		SELECT account_id FROM referral_codes WHERE code = $1
	`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrCodeNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: owner lookup", ErrInternal)
	}
	return owner, nil
}

func (r *PostgresRepository) InsertCode(ctx context.Context, accountID uuid.UUID, code string) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	// Codes can be issued before the account has any ledger activity, so the
	// anchor row may not exist yet.
	if _, err := tx.ExecContext(ctx2, `
		INSERT INTO loyalty_accounts (account_id) VALUES ($1) ON CONFLICT (account_id) DO NOTHING
	`, accountID); err != nil {
		return fmt.Errorf("%w: ensure account", ErrInternal)
	}

	if _, err := tx.ExecContext(ctx2, `
		INSERT INTO referral_codes (code, account_id) VALUES ($1, $2)
	`, code, accountID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "account_id") {
				// Lost a race against a concurrent issue for the same
				// account; the caller re-reads the winning code.
				return ErrCodeTaken
			}
			return ErrCodeTaken
		}
		return fmt.Errorf("%w: insert code", ErrInternal)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit", ErrInternal)
	}
	return nil
}

func (r *PostgresRepository) CreatePending(ctx context.Context, code string, referredAccount uuid.UUID, referredIdentity string) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx2, `
		INSERT INTO referrals (code, referred_identity, referred_account, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code, referred_identity) DO NOTHING
	`, code, referredIdentity, referredAccount, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("%w: insert referral", ErrInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected", ErrInternal)
	}
	if rows == 0 {
		// Pair already recorded; re-applying must not repeat the welcome bonus.
		return false, nil
	}

	err = r.ledger.AppendTx(ctx2, tx, ledger.Transaction{
		ID:          uuid.New(),
		AccountID:   referredAccount,
		Kind:        ledger.KindReferralWelcome,
		Points:      WelcomePoints,
		Description: fmt.Sprintf("Welcome bonus for joining with code %s", code),
	})
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit", ErrInternal)
	}

	r.ledger.InvalidateBalance(ctx, referredAccount)
	return true, nil
}

func (r *PostgresRepository) Complete(ctx context.Context, referredIdentity string) (bool, uuid.UUID, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	// Lock the oldest pending referral for this identity. The status check in
	// the locked row is the exactly-once guard.
	var pending struct {
		Code            string    `db:"code"`
		ReferredAccount uuid.UUID `db:"referred_account"`
	}
	err = tx.GetContext(ctx2, &pending, `
		SELECT code, referred_account
		FROM referrals
		WHERE referred_identity = $1 AND status = $2
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE
	`, referredIdentity, string(StatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return false, uuid.Nil, nil
	}
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("%w: pending lookup", ErrInternal)
	}

	result, err := tx.ExecContext(ctx2, `
		UPDATE referrals
		SET status = $1, points_earned = $2, completed_at = now()
		WHERE code = $3 AND referred_identity = $4 AND status = $5
	`, string(StatusCompleted), BonusPoints, pending.Code, referredIdentity, string(StatusPending))
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("%w: complete referral", ErrInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("%w: rows affected", ErrInternal)
	}
	if rows == 0 {
		return false, uuid.Nil, nil
	}

	referrer, err := func() (uuid.UUID, error) {
		var owner uuid.UUID
		err := tx.GetContext(ctx2, &owner, `SELECT account_id FROM referral_codes WHERE code = $1`, pending.Code)
		return owner, err
	}()
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("%w: referrer lookup", ErrInternal)
	}

	err = r.ledger.AppendTx(ctx2, tx, ledger.Transaction{
		ID:          uuid.New(),
		AccountID:   referrer,
		Kind:        ledger.KindReferralBonus,
		Points:      BonusPoints,
		Description: fmt.Sprintf("Referral bonus: %s placed their first order", referredIdentity),
	})
	if err != nil {
		return false, uuid.Nil, err
	}

	if err := tx.Commit(); err != nil {
		return false, uuid.Nil, fmt.Errorf("%w: commit", ErrInternal)
	}

	r.ledger.InvalidateBalance(ctx, referrer)
	return true, referrer, nil
}
