package targetstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ismaiel54/trade-target-engine/internal/allocation"
	"github.com/ismaiel54/trade-target-engine/internal/msg"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrTargetNotFound = errors.New("target not found")
)

// RejectError is a write refused by server-side validation. The message is
// meant for the end user.
type RejectError struct {
	Err error
}

func (e *RejectError) Error() string       { return e.Err.Error() }
func (e *RejectError) Unwrap() error       { return e.Err }
func (e *RejectError) UserMessage() string { return e.Err.Error() }

// Store persists orders and their targets. Every write commits together with
// an outbox row carrying the resulting order snapshot.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OutboxEvent represents an event waiting to be published
type OutboxEvent struct {
	ID                  int64
	OrderID             string
	EventID             string
	Topic               string
	Key                 string
	PayloadJSON         string
	CreatedUnixMillis   int64
	PublishedUnixMillis sql.NullInt64
}

// Open creates or opens the store at path
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; transactions never wait on each other
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			side TEXT NOT NULL,
			lot_size REAL NOT NULL,
			min_lot_size REAL NOT NULL,
			lot_step_size REAL NOT NULL,
			entry_price REAL NOT NULL,
			updated_unix_millis INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_targets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			lot_size REAL NOT NULL,
			stop_loss REAL NOT NULL,
			take_profit REAL NOT NULL,
			entry_price REAL NOT NULL,
			is_closed INTEGER NOT NULL DEFAULT 0,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			updated_unix_millis INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_targets_order ON order_targets(order_id)`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			event_id TEXT NOT NULL UNIQUE,
			topic TEXT NOT NULL,
			key TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			created_unix_millis INTEGER NOT NULL,
			published_unix_millis INTEGER NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
			ON outbox_events(published_unix_millis)
			WHERE published_unix_millis IS NULL`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// UpsertOrder stores the order read model and publishes its snapshot
func (s *Store) UpsertOrder(ctx context.Context, o target.Order) error {
	if o.ID == "" {
		return &RejectError{Err: errors.New("order id is required")}
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO orders (order_id, account_id, side, lot_size, min_lot_size, lot_step_size, entry_price, updated_unix_millis)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(order_id) DO UPDATE SET
				account_id = excluded.account_id,
				side = excluded.side,
				lot_size = excluded.lot_size,
				min_lot_size = excluded.min_lot_size,
				lot_step_size = excluded.lot_step_size,
				entry_price = excluded.entry_price,
				updated_unix_millis = excluded.updated_unix_millis`,
			o.ID, o.AccountID, string(o.Side), o.LotSize, o.MinLotSize, o.LotStepSize, o.EntryPrice, s.now().UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert order: %w", err)
		}
		return s.writeSnapshot(ctx, tx, o.ID)
	})
}

// GetOrder returns the stored order
func (s *Store) GetOrder(ctx context.Context, orderID string) (target.Order, error) {
	var o target.Order
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		o, err = loadOrder(ctx, tx, orderID)
		return err
	})
	return o, err
}

// ListTargets returns the live targets of an order in creation order
func (s *Store) ListTargets(ctx context.Context, orderID string) ([]target.Target, error) {
	var out []target.Target
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := loadOrder(ctx, tx, orderID); err != nil {
			return err
		}
		var err error
		out, err = loadTargets(ctx, tx, orderID, false)
		return err
	})
	return out, err
}

// CreateTarget validates the payload against the order's remaining lot and
// inserts it
func (s *Store) CreateTarget(ctx context.Context, p target.CreatePayload) (*target.Target, error) {
	var created target.Target
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		order, err := loadOrder(ctx, tx, p.OrderID)
		if err != nil {
			return err
		}
		live, err := loadTargets(ctx, tx, p.OrderID, false)
		if err != nil {
			return err
		}
		draft := target.Draft{LotSize: p.LotSize, StopLoss: p.StopLoss, TakeProfit: p.TakeProfit}
		if err := allocation.ValidateCreate(order, live, draft); err != nil {
			return &RejectError{Err: err}
		}

		created = target.Target{
			OrderID:    order.ID,
			AccountID:  p.AccountID,
			LotSize:    p.LotSize,
			StopLoss:   p.StopLoss,
			TakeProfit: p.TakeProfit,
			EntryPrice: p.EntryPrice,
			IsClosed:   p.IsClosed,
		}
		if created.AccountID == "" {
			created.AccountID = order.AccountID
		}
		if created.EntryPrice == 0 {
			created.EntryPrice = order.EntryPrice
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO order_targets (order_id, account_id, lot_size, stop_loss, take_profit, entry_price, is_closed, is_deleted, updated_unix_millis)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			created.OrderID, created.AccountID, created.LotSize, created.StopLoss, created.TakeProfit,
			created.EntryPrice, created.IsClosed, s.now().UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert target: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read target id: %w", err)
		}
		created.ID = strconv.FormatInt(id, 10)

		return s.writeSnapshot(ctx, tx, order.ID)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTarget replaces the lot, stop loss and take profit of a live target
func (s *Store) UpdateTarget(ctx context.Context, id string, p target.UpdatePayload) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		rowID, orderID, err := targetOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		order, err := loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		live, err := loadTargets(ctx, tx, orderID, false)
		if err != nil {
			return err
		}
		draft := target.Draft{LotSize: p.LotSize, StopLoss: p.StopLoss, TakeProfit: p.TakeProfit}
		if err := allocation.ValidateUpdate(order, live, strconv.FormatInt(rowID, 10), draft); err != nil {
			return &RejectError{Err: err}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE order_targets SET lot_size = ?, stop_loss = ?, take_profit = ?, updated_unix_millis = ?
			 WHERE id = ?`,
			p.LotSize, p.StopLoss, p.TakeProfit, s.now().UnixMilli(), rowID,
		)
		if err != nil {
			return fmt.Errorf("failed to update target: %w", err)
		}
		return s.writeSnapshot(ctx, tx, orderID)
	})
}

// DeleteTarget marks a target deleted. The published snapshot carries it
// with isDeleted set so subscribers drop it.
func (s *Store) DeleteTarget(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		rowID, orderID, err := targetOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE order_targets SET is_deleted = 1, updated_unix_millis = ? WHERE id = ?`,
			s.now().UnixMilli(), rowID,
		)
		if err != nil {
			return fmt.Errorf("failed to delete target: %w", err)
		}
		return s.writeSnapshot(ctx, tx, orderID)
	})
}

// ListUnpublished returns unpublished outbox events
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, event_id, topic, key, payload_json, created_unix_millis, published_unix_millis
		 FROM outbox_events
		 WHERE published_unix_millis IS NULL
		 ORDER BY id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(
			&e.ID, &e.OrderID, &e.EventID, &e.Topic, &e.Key,
			&e.PayloadJSON, &e.CreatedUnixMillis, &e.PublishedUnixMillis,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkPublished marks an event as published
func (s *Store) MarkPublished(ctx context.Context, eventID string, nowMillis int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox_events SET published_unix_millis = ? WHERE event_id = ?",
		nowMillis, eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// writeSnapshot appends the full current state of an order to the outbox,
// deleted targets included and flagged
func (s *Store) writeSnapshot(ctx context.Context, tx *sql.Tx, orderID string) error {
	order, err := loadOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	targets, err := loadTargets(ctx, tx, orderID, true)
	if err != nil {
		return err
	}

	now := s.now().UnixMilli()
	snap := msg.OrderSnapshotMsg{
		EventID:      "snap-" + uuid.NewString(),
		OrderID:      order.ID,
		AccountID:    order.AccountID,
		Side:         string(order.Side),
		LotSize:      order.LotSize,
		MinLotSize:   order.MinLotSize,
		LotStepSize:  order.LotStepSize,
		EntryPrice:   order.EntryPrice,
		Targets:      make([]msg.TargetMsg, 0, len(targets)),
		TsUnixMillis: now,
	}
	for _, t := range targets {
		snap.Targets = append(snap.Targets, msg.TargetMsg{
			ID:         t.ID,
			OrderID:    t.OrderID,
			AccountID:  t.AccountID,
			LotSize:    t.LotSize,
			StopLoss:   t.StopLoss,
			TakeProfit: t.TakeProfit,
			EntryPrice: t.EntryPrice,
			IsClosed:   t.IsClosed,
			IsDeleted:  t.IsDeleted,
		})
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal order snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (order_id, event_id, topic, key, payload_json, created_unix_millis, published_unix_millis)
		 VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		order.ID, snap.EventID, msg.TopicOrderSnapshots, order.ID, string(payload), now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

func loadOrder(ctx context.Context, tx *sql.Tx, orderID string) (target.Order, error) {
	var o target.Order
	var side string
	err := tx.QueryRowContext(ctx,
		`SELECT order_id, account_id, side, lot_size, min_lot_size, lot_step_size, entry_price
		 FROM orders WHERE order_id = ?`,
		orderID,
	).Scan(&o.ID, &o.AccountID, &side, &o.LotSize, &o.MinLotSize, &o.LotStepSize, &o.EntryPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return target.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return target.Order{}, fmt.Errorf("failed to load order: %w", err)
	}
	o.Side = target.Side(side)
	return o, nil
}

func loadTargets(ctx context.Context, tx *sql.Tx, orderID string, withDeleted bool) ([]target.Target, error) {
	query := `SELECT id, order_id, account_id, lot_size, stop_loss, take_profit, entry_price, is_closed, is_deleted
		 FROM order_targets WHERE order_id = ?`
	if !withDeleted {
		query += ` AND is_deleted = 0`
	}
	query += ` ORDER BY id ASC`

	rows, err := tx.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	out := []target.Target{}
	for rows.Next() {
		var t target.Target
		var id int64
		if err := rows.Scan(&id, &t.OrderID, &t.AccountID, &t.LotSize, &t.StopLoss, &t.TakeProfit,
			&t.EntryPrice, &t.IsClosed, &t.IsDeleted); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		t.ID = strconv.FormatInt(id, 10)
		out = append(out, t)
	}
	return out, rows.Err()
}

// targetOrder resolves a live target id to its row id and order
func targetOrder(ctx context.Context, tx *sql.Tx, id string) (int64, string, error) {
	rowID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}
	var orderID string
	err = tx.QueryRowContext(ctx,
		`SELECT order_id FROM order_targets WHERE id = ? AND is_deleted = 0`, rowID,
	).Scan(&orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to load target: %w", err)
	}
	return rowID, orderID, nil
}
