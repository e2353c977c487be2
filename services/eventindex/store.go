package eventindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"epkfarm/core/types"
	"epkfarm/crypto"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

var accountAttributes = []string{"addr", "funder", "from", "to", "owner", "spender"}

// ErrInvalidAccount is returned when a query names an address that does not
// decode.
var ErrInvalidAccount = errors.New("eventindex: invalid account")

// Open connects to the configured driver. Supported drivers are "sqlite" and
// "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("eventindex: unsupported driver %q", driver)
	}
}

// Store persists rendered events and serves account history.
type Store struct {
	db *gorm.DB

	mu       sync.Mutex
	sequence uint64
	now      func() time.Time
}

// Entry is the read model returned by Query.
type Entry struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Height     uint64            `json:"height"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Query filters index reads. Account is required; Type narrows to a single
// event type. Results are newest first.
type Query struct {
	Account string
	Type    string
	Before  uint64
	Limit   int
}

// NewStore migrates the schema and resumes the sequence counter.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("eventindex: nil database")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("eventindex: migrate: %w", err)
	}
	var last EventRecord
	err := db.Order("sequence desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("eventindex: load sequence: %w", err)
	}
	return &Store{db: db, sequence: last.Sequence, now: time.Now}, nil
}

// Record stores evt at the given height. Heights carried in the event's own
// attributes take precedence.
func (s *Store) Record(ctx context.Context, fallbackHeight uint64, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	height := fallbackHeight
	if raw, ok := evt.Attributes["height"]; ok {
		if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil {
			height = parsed
		}
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return fmt.Errorf("eventindex: encode attributes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := EventRecord{
		ID:         uuid.New(),
		Sequence:   s.sequence + 1,
		Height:     height,
		Type:       evt.Type,
		Attributes: string(attrs),
		CreatedAt:  s.now().UTC(),
	}
	for _, role := range accountAttributes {
		account := strings.TrimSpace(evt.Attributes[role])
		if account == "" {
			continue
		}
		record.Accounts = append(record.Accounts, EventAccount{
			ID:      uuid.New(),
			Account: account,
			Role:    role,
		})
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("eventindex: insert %s: %w", evt.Type, err)
	}
	s.sequence = record.Sequence
	return nil
}

// Query returns the events that mention q.Account, newest first.
func (s *Store) Query(ctx context.Context, q Query) ([]Entry, error) {
	account, err := canonicalAccount(q.Account)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	db := s.db.WithContext(ctx)
	linked := db.Model(&EventAccount{}).Select("event_id").Where("account = ?", account)
	tx := db.Model(&EventRecord{}).Where("id IN (?)", linked)
	if eventType := strings.TrimSpace(q.Type); eventType != "" {
		tx = tx.Where("type = ?", eventType)
	}
	if q.Before > 0 {
		tx = tx.Where("sequence < ?", q.Before)
	}
	var records []EventRecord
	if err := tx.Order("sequence desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("eventindex: query: %w", err)
	}

	out := make([]Entry, 0, len(records))
	for _, record := range records {
		attrs := map[string]string{}
		if record.Attributes != "" {
			if err := json.Unmarshal([]byte(record.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("eventindex: decode %s: %w", record.ID, err)
			}
		}
		out = append(out, Entry{
			ID:         record.ID.String(),
			Sequence:   record.Sequence,
			Height:     record.Height,
			Type:       record.Type,
			Attributes: attrs,
			RecordedAt: record.CreatedAt,
		})
	}
	return out, nil
}

// canonicalAccount re-encodes addr with the account prefix events use, so
// module addresses and account addresses with the same bytes match.
func canonicalAccount(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return "", fmt.Errorf("%w: account must be provided", ErrInvalidAccount)
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	return crypto.MustNewAddress(crypto.EPKPrefix, decoded.Bytes()).String(), nil
}
