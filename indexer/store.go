package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"merkledrop/core/events"
	"merkledrop/core/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultLimit = 100
	maxLimit     = 1000
)

// Open connects to the indexer database and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// Store persists committed events and serves them back in commit order. It
// implements events.Emitter so it can subscribe to the node directly.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu  sync.Mutex
	seq uint64
}

// NewStore wraps a migrated database. Sequence numbering resumes after the
// highest stored record.
func NewStore(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	var last EventRecord
	err := db.Order("sequence desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	return &Store{db: db, logger: logger, nowFn: time.Now, seq: last.Sequence}, nil
}

// Emit records evt. Failures are logged; the ledger has already committed.
func (s *Store) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	if _, err := s.Record(context.Background(), evt.Event()); err != nil {
		s.logger.Error("index event", "event", evt.EventType(), "error", err.Error())
	}
}

// Record appends evt and returns the stored row.
func (s *Store) Record(ctx context.Context, evt *types.Event) (*EventRecord, error) {
	if evt == nil || strings.TrimSpace(evt.Type) == "" {
		return nil, errors.New("indexer: event type required")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record := &EventRecord{
		ID:         uuid.New(),
		Sequence:   s.seq + 1,
		Type:       evt.Type,
		Subject:    subjectOf(evt),
		Attributes: string(attrs),
		CreatedAt:  s.nowFn().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("indexer: insert: %w", err)
	}
	s.seq = record.Sequence
	return record, nil
}

// Query filters stored events. Zero fields match everything.
type Query struct {
	Type    string
	Subject string
	After   uint64
	Limit   int
}

// List returns matching records ordered by sequence.
func (s *Store) List(ctx context.Context, q Query) ([]EventRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	tx := s.db.WithContext(ctx).Model(&EventRecord{}).Where("sequence > ?", q.After)
	if t := strings.TrimSpace(q.Type); t != "" {
		tx = tx.Where("type = ?", t)
	}
	if subject := strings.TrimSpace(q.Subject); subject != "" {
		tx = tx.Where("subject = ?", subject)
	}
	var out []EventRecord
	if err := tx.Order("sequence asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
