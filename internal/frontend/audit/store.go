package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/marcus-qen/monfront/internal/frontend/dbutil"
	"go.uber.org/zap"
)

// Fixed-width so that timestamps order correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists audit events and keeps the most recent ones in memory.
type Store struct {
	db          *dbutil.DB
	logger      *zap.Logger
	log         *Log // in-memory cache for fast queries
	memoryLimit int
	mu          sync.RWMutex
}

// NewStore creates the audit table when missing and loads recent events.
func NewStore(db *dbutil.DB, memoryLimit int, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_events (
		id         VARCHAR(64) PRIMARY KEY,
		timestamp  VARCHAR(40) NOT NULL,
		type       VARCHAR(40) NOT NULL,
		action     VARCHAR(255),
		actor      VARCHAR(100),
		summary    TEXT,
		detail     TEXT
	)`); err != nil {
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_events(action)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_events(timestamp)`)

	s := &Store{
		db:          db,
		logger:      logger,
		log:         NewLog(memoryLimit),
		memoryLimit: memoryLimit,
	}

	if err := s.loadRecent(memoryLimit); err != nil {
		logger.Warn("load recent audit events", zap.Error(err))
	}
	return s, nil
}

// Record persists an event to both memory and the database.
func (s *Store) Record(evt Event) {
	enrichEvent(&evt)

	s.mu.RLock()
	s.log.Record(evt)
	s.mu.RUnlock()

	if err := s.persist(evt); err != nil {
		s.logger.Warn("persist audit event",
			zap.String("id", evt.ID),
			zap.String("type", string(evt.Type)),
			zap.Error(err),
		)
	}
}

// Query delegates to the in-memory cache.
func (s *Store) Query(f Filter) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.Query(f)
}

// Recent returns the N most recent events from memory.
func (s *Store) Recent(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.Recent(n)
}

// Count returns the total persisted event count.
func (s *Store) Count() int {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&count); err != nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.log.Count()
	}
	return count
}

// QueryPersisted searches the database directly, newest first.
func (s *Store) QueryPersisted(f Filter) ([]Event, error) {
	query, args := buildPersistedQuery(f, true)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			continue
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// StreamJSONL streams matching events as newline-delimited JSON.
func (s *Store) StreamJSONL(ctx context.Context, w io.Writer, f Filter) error {
	query, args := buildPersistedQuery(f, false)

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	enc := json.NewEncoder(w)
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			continue
		}
		if err := enc.Encode(evt); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Purge deletes persisted events older than now - olderThan and returns deleted row count.
func (s *Store) Purge(olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, errors.New("olderThan must be >= 0")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	res, err := s.db.Exec("DELETE FROM audit_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		if err := s.loadRecent(s.memoryLimit); err != nil {
			return deleted, err
		}
	}

	return deleted, nil
}

// PurgeLoop periodically applies retention to remove old audit events.
func (s *Store) PurgeLoop(ctx context.Context, retention time.Duration, interval time.Duration) {
	if retention <= 0 || interval <= 0 {
		return
	}

	s.purge(retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge(retention)
		}
	}
}

func (s *Store) purge(retention time.Duration) {
	n, err := s.Purge(retention)
	if err != nil {
		s.logger.Warn("audit purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("audit events purged", zap.Int64("count", n))
	}
}

func (s *Store) persist(evt Event) error {
	var detail []byte
	if evt.Detail != nil {
		detail, _ = json.Marshal(evt.Detail)
	}

	_, err := s.db.Exec(`INSERT INTO audit_events (id, timestamp, type, action, actor, summary, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evt.ID,
		evt.Timestamp.UTC().Format(timeLayout),
		string(evt.Type),
		evt.Action,
		evt.Actor,
		evt.Summary,
		string(detail),
	)
	if dbutil.IsUniqueViolation(err) {
		return nil
	}
	return err
}

func (s *Store) loadRecent(limit int) error {
	events, err := s.QueryPersisted(Filter{Limit: limit})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = NewLog(s.memoryLimit)

	// Oldest first so the memory log keeps its order
	for i := len(events) - 1; i >= 0; i-- {
		s.log.Record(events[i])
	}
	return nil
}

func buildPersistedQuery(f Filter, includeLimit bool) (string, []any) {
	query := "SELECT id, timestamp, type, action, actor, summary, detail FROM audit_events WHERE 1=1"
	var args []any

	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.Actor != "" {
		query += " AND actor = ?"
		args = append(args, f.Actor)
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC().Format(timeLayout))
	}
	if !f.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.Until.UTC().Format(timeLayout))
	}

	query += " ORDER BY timestamp DESC, id DESC"
	if includeLimit && f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(scanner rowScanner) (Event, error) {
	var evt Event
	var ts string
	var action, actor, summary, detail *string
	if err := scanner.Scan(&evt.ID, &ts, &evt.Type, &action, &actor, &summary, &detail); err != nil {
		return Event{}, err
	}

	evt.Timestamp, _ = time.Parse(timeLayout, ts)
	evt.Action = deref(action)
	evt.Actor = deref(actor)
	evt.Summary = deref(summary)
	if d := deref(detail); d != "" && d != "null" {
		_ = json.Unmarshal([]byte(d), &evt.Detail)
	}
	return evt, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
