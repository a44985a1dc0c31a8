/*
Package sqlite provides the SQLite-backed implementation of engine.Store.

PURPOSE:
  Production persistence for groups, expense edit chains, settlements,
  and the versioned GroupBalance projection. The same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

EDIT-CHAIN ENFORCEMENT:
  Expense rows are never rewritten in place. An edit inserts the
  replacement row and stamps superseded_by + deleted_at on the original
  inside one transaction. Deletes are soft (deleted_at/deleted_by).
  Superseded rows reject further deletes: chain interiors are terminal.

OPTIMISTIC LOCK:
  group_balances carries a version column. The conditional write is

    UPDATE group_balances SET ... WHERE group_id = ? AND version = ?

  and zero affected rows means another writer committed first
  (engine.ErrConcurrentModification). Version 0 maps to an INSERT, where
  the primary-key conflict plays the same role.

KEY TABLES:
  groups:               group records with JSON member lists
  expenses:             chain rows with soft-delete + supersede stamps
  expense_participants: ordered participant set (order drives remainders)
  expense_splits:       per-participant allocations
  settlements:          direct payments, soft-deleted
  group_balances:       versioned projection payload (JSON)

WAL MODE:
  SQLite is opened with WAL so readers don't block; a process-level
  mutex serializes writers, which SQLite requires anyway.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: interface contracts
  - engine/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/split-engine/engine"
	"github.com/warp/split-engine/money"
)

const timeLayout = time.RFC3339Nano

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writers; readers go through WAL
}

var _ engine.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		members_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Expense edit chains. Rows are inserted, soft-deleted, and
	-- superseded; they are never rewritten beyond those stamps.
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		paid_by TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		split_type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT,
		deleted_by TEXT,
		superseded_by TEXT
	);

	-- Aggregation hot path: active expenses per group+currency.
	CREATE INDEX IF NOT EXISTS idx_expenses_group_currency_active
		ON expenses(group_id, currency)
		WHERE deleted_at IS NULL AND superseded_by IS NULL;
	CREATE INDEX IF NOT EXISTS idx_expenses_group
		ON expenses(group_id);

	CREATE TABLE IF NOT EXISTS expense_participants (
		expense_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (expense_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS expense_splits (
		expense_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		percentage TEXT,
		position INTEGER NOT NULL,
		PRIMARY KEY (expense_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		payer_id TEXT NOT NULL,
		payee_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		deleted_at TEXT,
		deleted_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_settlements_group_currency_active
		ON settlements(group_id, currency)
		WHERE deleted_at IS NULL;

	-- Versioned balance projection: the optimistic-lock row.
	CREATE TABLE IF NOT EXISTS group_balances (
		group_id TEXT PRIMARY KEY,
		payload_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		last_updated TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// GROUPS
// =============================================================================

func (s *Store) CreateGroup(ctx context.Context, g *engine.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.ID == "" {
		g.ID = engine.GroupID(uuid.New().String())
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	members, err := json.Marshal(g.Members)
	if err != nil {
		return fmt.Errorf("marshal members: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO groups (id, name, members_json, created_at) VALUES (?, ?, ?, ?)",
		g.ID, g.Name, string(members), g.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id engine.GroupID) (*engine.Group, error) {
	var (
		g         engine.Group
		members   string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, members_json, created_at FROM groups WHERE id = ?", id,
	).Scan(&g.ID, &g.Name, &members, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if err := json.Unmarshal([]byte(members), &g.Members); err != nil {
		return nil, fmt.Errorf("unmarshal members: %w", err)
	}
	if g.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &g, nil
}

// =============================================================================
// EXPENSES
// =============================================================================

func (s *Store) CreateExpense(ctx context.Context, e *engine.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertExpenseTx(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

func insertExpenseTx(ctx context.Context, tx *sql.Tx, e *engine.Expense) error {
	if e.ID == "" {
		e.ID = engine.ExpenseID(uuid.New().String())
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, paid_by, amount, currency, split_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.GroupID, e.PaidBy, e.Amount.Value.String(), e.Currency(), e.SplitType,
		e.CreatedAt.Format(timeLayout), e.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	for i, p := range e.Participants {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO expense_participants (expense_id, user_id, position) VALUES (?, ?, ?)",
			e.ID, p, i,
		); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	for i, sp := range e.Splits {
		var pct any
		if sp.Percentage != nil {
			pct = sp.Percentage.String()
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO expense_splits (expense_id, user_id, amount, percentage, position) VALUES (?, ?, ?, ?, ?)",
			e.ID, sp.UserID, sp.Amount.Value.String(), pct, i,
		); err != nil {
			return fmt.Errorf("insert split: %w", err)
		}
	}
	return nil
}

func (s *Store) GetExpense(ctx context.Context, id engine.ExpenseID) (*engine.Expense, error) {
	expenses, err := s.queryExpenses(ctx, "WHERE e.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return nil, engine.ErrExpenseNotFound
	}
	return &expenses[0], nil
}

// SupersedeExpense inserts the replacement and stamps the original as
// superseded, atomically. Editing an already-superseded or deleted row
// fails: edits must target the chain head.
func (s *Store) SupersedeExpense(ctx context.Context, originalID engine.ExpenseID, replacement *engine.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var supersededBy, deletedAt sql.NullString
	err = tx.QueryRowContext(ctx,
		"SELECT superseded_by, deleted_at FROM expenses WHERE id = ?", originalID,
	).Scan(&supersededBy, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ErrExpenseNotFound
	}
	if err != nil {
		return fmt.Errorf("load original: %w", err)
	}
	if supersededBy.Valid && supersededBy.String != "" {
		return engine.ErrExpenseSuperseded
	}
	if deletedAt.Valid {
		return engine.ErrExpenseNotFound
	}

	if err := insertExpenseTx(ctx, tx, replacement); err != nil {
		return err
	}

	now := time.Now().UTC().Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		"UPDATE expenses SET superseded_by = ?, deleted_at = ?, updated_at = ? WHERE id = ?",
		replacement.ID, now, now, originalID,
	); err != nil {
		return fmt.Errorf("stamp original: %w", err)
	}
	return tx.Commit()
}

func (s *Store) SoftDeleteExpense(ctx context.Context, id engine.ExpenseID, deletedBy engine.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var supersededBy, deletedAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT superseded_by, deleted_at FROM expenses WHERE id = ?", id,
	).Scan(&supersededBy, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ErrExpenseNotFound
	}
	if err != nil {
		return fmt.Errorf("load expense: %w", err)
	}
	if supersededBy.Valid && supersededBy.String != "" {
		return engine.ErrExpenseSuperseded
	}
	if deletedAt.Valid {
		return engine.ErrExpenseNotFound
	}

	now := time.Now().UTC().Format(timeLayout)
	if _, err := s.db.ExecContext(ctx,
		"UPDATE expenses SET deleted_at = ?, deleted_by = ?, updated_at = ? WHERE id = ?",
		now, deletedBy, now, id,
	); err != nil {
		return fmt.Errorf("soft delete expense: %w", err)
	}
	return nil
}

func (s *Store) ListActiveExpenses(ctx context.Context, groupID engine.GroupID, currency money.Currency) ([]engine.Expense, error) {
	return s.queryExpenses(ctx,
		`WHERE e.group_id = ? AND e.currency = ?
		   AND e.deleted_at IS NULL AND e.superseded_by IS NULL
		 ORDER BY e.created_at, e.id`,
		groupID, currency)
}

func (s *Store) ListGroupExpenses(ctx context.Context, groupID engine.GroupID) ([]engine.Expense, error) {
	return s.queryExpenses(ctx,
		`WHERE e.group_id = ?
		   AND e.deleted_at IS NULL AND e.superseded_by IS NULL
		 ORDER BY e.created_at, e.id`,
		groupID)
}

func (s *Store) queryExpenses(ctx context.Context, where string, args ...any) ([]engine.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.group_id, e.paid_by, e.amount, e.currency, e.split_type,
		        e.created_at, e.updated_at, e.deleted_at, e.deleted_by, e.superseded_by
		 FROM expenses e `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []engine.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}

	for i := range expenses {
		if err := s.loadExpenseChildren(ctx, &expenses[i]); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

func scanExpense(rows *sql.Rows) (*engine.Expense, error) {
	var (
		e                    engine.Expense
		amount, currency     string
		createdAt, updatedAt string
		deletedAt, deletedBy sql.NullString
		supersededBy         sql.NullString
	)
	if err := rows.Scan(&e.ID, &e.GroupID, &e.PaidBy, &amount, &currency, &e.SplitType,
		&createdAt, &updatedAt, &deletedAt, &deletedBy, &supersededBy); err != nil {
		return nil, fmt.Errorf("scan expense: %w", err)
	}

	var err error
	if e.Amount, err = money.Parse(amount, money.Currency(currency)); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if deletedAt.Valid {
		t, err := time.Parse(timeLayout, deletedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse deleted_at: %w", err)
		}
		e.DeletedAt = &t
	}
	if deletedBy.Valid {
		e.DeletedBy = engine.UserID(deletedBy.String)
	}
	if supersededBy.Valid {
		e.SupersededBy = engine.ExpenseID(supersededBy.String)
	}
	return &e, nil
}

func (s *Store) loadExpenseChildren(ctx context.Context, e *engine.Expense) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM expense_participants WHERE expense_id = ? ORDER BY position", e.ID)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u engine.UserID
		if err := rows.Scan(&u); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		e.Participants = append(e.Participants, u)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate participants: %w", err)
	}

	splitRows, err := s.db.QueryContext(ctx,
		"SELECT user_id, amount, percentage FROM expense_splits WHERE expense_id = ? ORDER BY position", e.ID)
	if err != nil {
		return fmt.Errorf("query splits: %w", err)
	}
	defer splitRows.Close()
	for splitRows.Next() {
		var (
			sp     engine.Split
			amount string
			pct    sql.NullString
		)
		if err := splitRows.Scan(&sp.UserID, &amount, &pct); err != nil {
			return fmt.Errorf("scan split: %w", err)
		}
		if sp.Amount, err = money.Parse(amount, e.Currency()); err != nil {
			return fmt.Errorf("parse split amount: %w", err)
		}
		if pct.Valid {
			d, err := decimal.NewFromString(pct.String)
			if err != nil {
				return fmt.Errorf("parse percentage: %w", err)
			}
			sp.Percentage = &d
		}
		e.Splits = append(e.Splits, sp)
	}
	return splitRows.Err()
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func (s *Store) CreateSettlement(ctx context.Context, st *engine.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		st.ID = engine.SettlementID(uuid.New().String())
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	if st.Date.IsZero() {
		st.Date = st.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settlements (id, group_id, payer_id, payee_id, amount, currency, paid_at, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.GroupID, st.PayerID, st.PayeeID, st.Amount.Value.String(), st.Currency(),
		st.Date.Format(timeLayout), st.Note, st.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

func (s *Store) GetSettlement(ctx context.Context, id engine.SettlementID) (*engine.Settlement, error) {
	settlements, err := s.querySettlements(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(settlements) == 0 {
		return nil, engine.ErrSettlementNotFound
	}
	return &settlements[0], nil
}

func (s *Store) SoftDeleteSettlement(ctx context.Context, id engine.SettlementID, deletedBy engine.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		"UPDATE settlements SET deleted_at = ?, deleted_by = ? WHERE id = ? AND deleted_at IS NULL",
		now, deletedBy, id,
	)
	if err != nil {
		return fmt.Errorf("soft delete settlement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return engine.ErrSettlementNotFound
	}
	return nil
}

func (s *Store) ListActiveSettlements(ctx context.Context, groupID engine.GroupID, currency money.Currency) ([]engine.Settlement, error) {
	return s.querySettlements(ctx,
		"WHERE group_id = ? AND currency = ? AND deleted_at IS NULL ORDER BY created_at, id",
		groupID, currency)
}

func (s *Store) ListGroupSettlements(ctx context.Context, groupID engine.GroupID) ([]engine.Settlement, error) {
	return s.querySettlements(ctx,
		"WHERE group_id = ? AND deleted_at IS NULL ORDER BY created_at, id",
		groupID)
}

func (s *Store) querySettlements(ctx context.Context, where string, args ...any) ([]engine.Settlement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, payer_id, payee_id, amount, currency, paid_at, note,
		        created_at, deleted_at, deleted_by
		 FROM settlements `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	var settlements []engine.Settlement
	for rows.Next() {
		var (
			st                   engine.Settlement
			amount, currency     string
			paidAt, createdAt    string
			deletedAt, deletedBy sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.GroupID, &st.PayerID, &st.PayeeID, &amount, &currency,
			&paidAt, &st.Note, &createdAt, &deletedAt, &deletedBy); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		if st.Amount, err = money.Parse(amount, money.Currency(currency)); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if st.Date, err = time.Parse(timeLayout, paidAt); err != nil {
			return nil, fmt.Errorf("parse paid_at: %w", err)
		}
		if st.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if deletedAt.Valid {
			t, err := time.Parse(timeLayout, deletedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse deleted_at: %w", err)
			}
			st.DeletedAt = &t
		}
		if deletedBy.Valid {
			st.DeletedBy = engine.UserID(deletedBy.String)
		}
		settlements = append(settlements, st)
	}
	return settlements, rows.Err()
}

// =============================================================================
// BALANCE PROJECTION - compare-and-swap on version
// =============================================================================

func (s *Store) ReadGroupBalance(ctx context.Context, groupID engine.GroupID) (*engine.GroupBalance, int64, error) {
	var (
		payload     string
		version     int64
		lastUpdated string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT payload_json, version, last_updated FROM group_balances WHERE group_id = ?", groupID,
	).Scan(&payload, &version, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read projection: %w", err)
	}

	bal := &engine.GroupBalance{GroupID: groupID, Version: version}
	if err := json.Unmarshal([]byte(payload), &bal.Currencies); err != nil {
		return nil, 0, fmt.Errorf("unmarshal projection: %w", err)
	}
	if bal.LastUpdated, err = time.Parse(timeLayout, lastUpdated); err != nil {
		return nil, 0, fmt.Errorf("parse last_updated: %w", err)
	}
	return bal, version, nil
}

func (s *Store) WriteGroupBalanceIfVersionMatches(ctx context.Context, groupID engine.GroupID, bal *engine.GroupBalance, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(bal.Currencies)
	if err != nil {
		return fmt.Errorf("marshal projection: %w", err)
	}
	lastUpdated := bal.LastUpdated.UTC().Format(timeLayout)

	if expectedVersion == 0 {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO group_balances (group_id, payload_json, version, last_updated) VALUES (?, ?, ?, ?)",
			groupID, string(payload), bal.Version, lastUpdated,
		)
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
			// Someone inserted the first version concurrently.
			return engine.ErrConcurrentModification
		}
		if err != nil {
			return fmt.Errorf("insert projection: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE group_balances SET payload_json = ?, version = ?, last_updated = ? WHERE group_id = ? AND version = ?",
		string(payload), bal.Version, lastUpdated, groupID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update projection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return engine.ErrConcurrentModification
	}
	return nil
}

// =============================================================================
// CURRENCIES
// =============================================================================

func (s *Store) ListCurrencies(ctx context.Context, groupID engine.GroupID) ([]money.Currency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT currency FROM expenses
		  WHERE group_id = ? AND deleted_at IS NULL AND superseded_by IS NULL
		 UNION
		 SELECT currency FROM settlements
		  WHERE group_id = ? AND deleted_at IS NULL
		 ORDER BY 1`,
		groupID, groupID)
	if err != nil {
		return nil, fmt.Errorf("query currencies: %w", err)
	}
	defer rows.Close()

	var out []money.Currency
	for rows.Next() {
		var c money.Currency
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan currency: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
