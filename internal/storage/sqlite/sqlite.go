// Package sqlite stores analysis batches in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/silolab/avalanche/internal/aggregate"
	"github.com/silolab/avalanche/internal/log"
	"github.com/silolab/avalanche/internal/storage"
)

// timeFormat has a fixed width so that created_at sorts as text
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store implements storage.ResultStore on SQLite
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	logger *zap.SugaredLogger
	health *storage.HealthTracker
}

var _ storage.ResultStore = (*Store)(nil)

// Open opens or creates the database at path
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: log.GetSugaredLogger(),
		health: storage.NewHealthTracker(),
	}
	s.health.Update("opened "+path, nil)
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Health reports the outcome of the latest write or health check
func (s *Store) Health() *storage.Health {
	return s.health.Get()
}

// CheckHealth pings the database and verifies the schema is readable
func (s *Store) CheckHealth(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM batches").Scan(&n); err != nil {
		return fmt.Errorf("batches table unreadable: %w", err)
	}
	return nil
}

// StartHealthMonitor checks the database every interval until ctx is done
func (s *Store) StartHealthMonitor(ctx context.Context, interval time.Duration) {
	storage.StartHealthMonitor(ctx, "sqlite", s, s.health, interval, s.logger)
}

// SaveBatch writes b with its runs and groups in one transaction. An empty
// ID is replaced with a new UUID and a zero CreatedAt with the current time.
func (s *Store) SaveBatch(ctx context.Context, b *storage.BatchRecord) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	defer func() {
		s.health.Update("saved batch "+b.ID, err)
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (id, created_at, root, source, gap_threshold, min_size, close_final_block)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.CreatedAt.UTC().Format(timeFormat), b.Root, b.Source,
		b.GapThreshold, b.MinSize, b.CloseFinalBlock)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	for i, r := range b.Runs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO runs (batch_id, seq, path, chi, outlet, events, skipped, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, i, r.Path, r.Key.Chi, r.Key.Outlet, r.Events, r.Skipped, r.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert run %s: %w", r.Path, err)
		}
	}

	for _, g := range b.Groups {
		if err = insertGroup(ctx, tx, b.ID, g); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	s.logger.Debugf("saved batch %s: %d runs, %d groups", b.ID, len(b.Runs), len(b.Groups))
	return nil
}

func insertGroup(ctx context.Context, tx *sql.Tx, batchID string, g *aggregate.Group) error {
	runIDs, err := msgpack.Marshal(g.RunIDs)
	if err != nil {
		return fmt.Errorf("failed to encode run ids of %s: %w", g.Key, err)
	}
	summary, err := msgpack.Marshal(g.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary of %s: %w", g.Key, err)
	}
	sizes, err := msgpack.Marshal(g.Sizes)
	if err != nil {
		return fmt.Errorf("failed to encode sizes of %s: %w", g.Key, err)
	}
	var durations []byte
	if len(g.Durations) > 0 {
		if durations, err = msgpack.Marshal(g.Durations); err != nil {
			return fmt.Errorf("failed to encode durations of %s: %w", g.Key, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_groups (batch_id, group_key, chi, outlet, run_ids, summary, sizes, durations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		batchID, g.Key.String(), g.Key.Chi, g.Key.Outlet, runIDs, summary, sizes, durations)
	if err != nil {
		return fmt.Errorf("failed to insert group %s: %w", g.Key, err)
	}
	return nil
}

// LatestBatch returns the most recently created batch with its runs
func (s *Store) LatestBatch(ctx context.Context) (*storage.BatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		b         storage.BatchRecord
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, root, source, gap_threshold, min_size, close_final_block
		FROM batches ORDER BY created_at DESC, rowid DESC LIMIT 1`).
		Scan(&b.ID, &createdAt, &b.Root, &b.Source, &b.GapThreshold, &b.MinSize, &b.CloseFinalBlock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no batches stored", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest batch: %w", err)
	}
	if b.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse batch time %q: %w", createdAt, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, chi, outlet, events, skipped, COALESCE(reason, '')
		FROM runs WHERE batch_id = ? ORDER BY seq`, b.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r storage.RunRecord
		if err := rows.Scan(&r.Path, &r.Key.Chi, &r.Key.Outlet, &r.Events, &r.Skipped, &r.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		b.Runs = append(b.Runs, r)
	}
	return &b, rows.Err()
}

// ListGroups returns the groups of a batch in key order, without sizes
func (s *Store) ListGroups(ctx context.Context, batchID string) ([]*aggregate.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT chi, outlet, run_ids, summary FROM run_groups WHERE batch_id = ?`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	groups := []*aggregate.Group{}
	for rows.Next() {
		var (
			g               aggregate.Group
			runIDs, summary []byte
		)
		if err := rows.Scan(&g.Key.Chi, &g.Key.Outlet, &runIDs, &summary); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		if err := decodeGroup(&g, runIDs, summary); err != nil {
			return nil, err
		}
		groups = append(groups, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortGroups(groups)
	return groups, nil
}

// Group returns one group with its sizes and durations
func (s *Store) Group(ctx context.Context, batchID string, key aggregate.GroupKey) (*aggregate.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		g                                 aggregate.Group
		runIDs, summary, sizes, durations []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT chi, outlet, run_ids, summary, sizes, durations
		FROM run_groups WHERE batch_id = ? AND group_key = ?`, batchID, key.String()).
		Scan(&g.Key.Chi, &g.Key.Outlet, &runIDs, &summary, &sizes, &durations)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: group %s in batch %s", storage.ErrNotFound, key, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query group %s: %w", key, err)
	}

	if err := decodeGroup(&g, runIDs, summary); err != nil {
		return nil, err
	}
	if err := msgpack.Unmarshal(sizes, &g.Sizes); err != nil {
		return nil, fmt.Errorf("failed to decode sizes of %s: %w", key, err)
	}
	if g.Sizes == nil {
		g.Sizes = []int{}
	}
	if len(durations) > 0 {
		if err := msgpack.Unmarshal(durations, &g.Durations); err != nil {
			return nil, fmt.Errorf("failed to decode durations of %s: %w", key, err)
		}
	}
	return &g, nil
}

// GroupSizes returns the pooled sizes of one group
func (s *Store) GroupSizes(ctx context.Context, batchID string, key aggregate.GroupKey) ([]int, error) {
	g, err := s.Group(ctx, batchID, key)
	if err != nil {
		return nil, err
	}
	return g.Sizes, nil
}

func decodeGroup(g *aggregate.Group, runIDs, summary []byte) error {
	if err := msgpack.Unmarshal(runIDs, &g.RunIDs); err != nil {
		return fmt.Errorf("failed to decode run ids of %s: %w", g.Key, err)
	}
	if err := msgpack.Unmarshal(summary, &g.Summary); err != nil {
		return fmt.Errorf("failed to decode summary of %s: %w", g.Key, err)
	}
	return nil
}

func sortGroups(groups []*aggregate.Group) {
	slices.SortFunc(groups, func(a, b *aggregate.Group) int {
		switch {
		case a.Key.Less(b.Key):
			return -1
		case b.Key.Less(a.Key):
			return 1
		}
		return 0
	})
}
