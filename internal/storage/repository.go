package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	insertSnapshotSQL = `INSERT INTO liquidity_snapshots (
        vault_address,
        chain,
        observed_at,
        liquidity,
        shares,
        utilization_pct,
        threshold,
        below_threshold
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (vault_address, observed_at) DO UPDATE
    SET
        chain           = EXCLUDED.chain,
        liquidity       = EXCLUDED.liquidity,
        shares          = EXCLUDED.shares,
        utilization_pct = EXCLUDED.utilization_pct,
        threshold       = EXCLUDED.threshold,
        below_threshold = EXCLUDED.below_threshold;`

	listSnapshotsBetweenSQL = `SELECT
        vault_address,
        chain,
        observed_at,
        liquidity,
        shares,
        utilization_pct,
        threshold,
        below_threshold,
        created_at
    FROM liquidity_snapshots
    WHERE lower(vault_address) = lower($1)
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM liquidity_snapshots WHERE lower(vault_address) = lower($1);`

	insertAlertSQL = `INSERT INTO alerts (
        vault_address,
        chain,
        liquidity,
        threshold,
        deficit
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, vault_address, chain, liquidity, threshold, deficit, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        vault_address,
        chain,
        liquidity,
        threshold,
        deficit,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`
)

// SnapshotStore defines operations for liquidity snapshot persistence.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, snapshot Snapshot) error
	ListSnapshotsBetween(ctx context.Context, vaultAddress string, from, to time.Time) ([]Snapshot, error)
	CountSnapshots(ctx context.Context, vaultAddress string) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, record AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// Store aggregates access to snapshots and alert records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertSnapshot persists or updates one liquidity observation.
func (s *Store) InsertSnapshot(ctx context.Context, snapshot Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, insertSnapshotSQL,
		snapshot.VaultAddress,
		snapshot.Chain,
		snapshot.ObservedAt,
		snapshot.Liquidity,
		snapshot.Shares,
		snapshot.UtilizationPct,
		snapshot.Threshold,
		snapshot.BelowThreshold,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// ListSnapshotsBetween returns snapshots for a vault within [from, to).
func (s *Store) ListSnapshotsBetween(ctx context.Context, vaultAddress string, from, to time.Time) ([]Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listSnapshotsBetweenSQL, vaultAddress, from, to)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// CountSnapshots returns the number of stored observations for a vault.
func (s *Store) CountSnapshots(ctx context.Context, vaultAddress string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := pool.QueryRow(ctx, countSnapshotsSQL, vaultAddress).Scan(&count); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return count, nil
}

// InsertAlert appends an alert audit row and returns the stored record.
func (s *Store) InsertAlert(ctx context.Context, record AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		record.VaultAddress,
		record.Chain,
		record.Liquidity,
		record.Threshold,
		record.Deficit,
	)

	var stored AlertRecord
	if err := row.Scan(
		&stored.ID,
		&stored.VaultAddress,
		&stored.Chain,
		&stored.Liquidity,
		&stored.Threshold,
		&stored.Deficit,
		&stored.CreatedAt,
	); err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	return stored, nil
}

// ListRecentAlerts returns the newest alert rows.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentAlertsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var records []AlertRecord
	for rows.Next() {
		var record AlertRecord
		if err := rows.Scan(
			&record.ID,
			&record.VaultAddress,
			&record.Chain,
			&record.Liquidity,
			&record.Threshold,
			&record.Deficit,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteAlertsBefore prunes audit rows older than the cutoff.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); err != nil {
		return fmt.Errorf("delete alerts: %w", err)
	}
	return nil
}

func scanSnapshots(rows pgx.Rows) ([]Snapshot, error) {
	var snapshots []Snapshot
	for rows.Next() {
		var snapshot Snapshot
		if err := rows.Scan(
			&snapshot.VaultAddress,
			&snapshot.Chain,
			&snapshot.ObservedAt,
			&snapshot.Liquidity,
			&snapshot.Shares,
			&snapshot.UtilizationPct,
			&snapshot.Threshold,
			&snapshot.BelowThreshold,
			&snapshot.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

var (
	_ SnapshotStore = (*Store)(nil)
	_ AlertStore    = (*Store)(nil)
)
