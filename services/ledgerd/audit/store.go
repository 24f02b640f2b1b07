package audit

import (
	"context"
	"encoding/binary"
	"encoding/hex"
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
	"lukechampine.com/blake3"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
)

// ErrChainBroken is returned by Verify when an entry does not link to its
// predecessor or its hash does not match its contents.
var ErrChainBroken = errors.New("audit: hash chain broken")

var genesisHash = strings.Repeat("0", 64)

// Entry is one ledger event in the append-only audit log.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index;not null"`
	Account    string    `gorm:"size:128;index"`
	Timestamp  int64     `gorm:"not null"`
	Attributes string    `gorm:"type:text;not null"`
	PrevHash   string    `gorm:"size:64;not null"`
	Hash       string    `gorm:"size:64;uniqueIndex;not null"`
	CreatedAt  time.Time
}

func (Entry) TableName() string { return "ledger_audit_entries" }

// Open connects to the audit database. driver is "postgres" or "sqlite".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("audit: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", driver, err)
	}
	return db, nil
}

// AutoMigrate creates the audit tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

// Store appends ledger events to a hash-chained table. It implements
// events.Emitter.
type Store struct {
	db     *gorm.DB
	mu     sync.Mutex
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewStore migrates the schema and returns a store writing to db.
func NewStore(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("audit: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, nowFn: time.Now}, nil
}

// Emit appends evt and logs failures. Events never block on the audit log
// failing.
func (s *Store) Emit(evt events.Event) {
	if _, err := s.Append(context.Background(), evt); err != nil {
		s.logger.Error("audit append failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Append stores evt as the next entry of the chain.
func (s *Store) Append(ctx context.Context, evt events.Event) (*Entry, error) {
	if evt == nil {
		return nil, errors.New("audit: nil event")
	}
	payload := evt.Event()
	if payload == nil {
		return nil, errors.New("audit: event has no payload")
	}
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		return nil, fmt.Errorf("audit: encode attributes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var entry *Entry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last []Entry
		seq := uint64(1)
		prev := genesisHash
		res := tx.Order("seq desc").Limit(1).Find(&last)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			seq = last[0].Seq + 1
			prev = last[0].Hash
		}

		entry = &Entry{
			ID:         uuid.New(),
			Seq:        seq,
			Type:       payload.Type,
			Account:    payload.Attr("account"),
			Timestamp:  payload.Timestamp,
			Attributes: string(attrs),
			PrevHash:   prev,
			CreatedAt:  s.nowFn().UTC(),
		}
		entry.Hash = entryHash(entry)
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, fmt.Errorf("audit: append: %w", err)
	}
	return entry, nil
}

// List returns up to limit entries with Seq greater than after.
func (s *Store) List(ctx context.Context, after uint64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var out []Entry
	err := s.db.WithContext(ctx).Where("seq > ?", after).Order("seq asc").Limit(limit).Find(&out).Error
	return out, err
}

// VerifyResult summarises a chain walk.
type VerifyResult struct {
	Entries uint64 `json:"entries"`
	Head    string `json:"head"`
}

// Verify walks the whole chain and recomputes every hash.
func (s *Store) Verify(ctx context.Context) (VerifyResult, error) {
	result := VerifyResult{Head: genesisHash}
	var after uint64
	for {
		batch, err := s.List(ctx, after, 500)
		if err != nil {
			return result, err
		}
		if len(batch) == 0 {
			return result, nil
		}
		for i := range batch {
			entry := &batch[i]
			if entry.Seq != result.Entries+1 {
				return result, fmt.Errorf("%w: expected seq %d, found %d", ErrChainBroken, result.Entries+1, entry.Seq)
			}
			if entry.PrevHash != result.Head {
				return result, fmt.Errorf("%w: seq %d does not link to its predecessor", ErrChainBroken, entry.Seq)
			}
			if entryHash(entry) != entry.Hash {
				return result, fmt.Errorf("%w: seq %d hash mismatch", ErrChainBroken, entry.Seq)
			}
			result.Entries = entry.Seq
			result.Head = entry.Hash
			after = entry.Seq
		}
	}
}

func entryHash(e *Entry) string {
	prev, err := hex.DecodeString(e.PrevHash)
	if err != nil {
		prev = []byte(e.PrevHash)
	}
	buf := make([]byte, 0, len(prev)+len(e.ID)+len(e.Type)+len(e.Account)+len(e.Attributes)+26)
	buf = append(buf, prev...)
	buf = append(buf, e.ID[:]...)
	buf = append(buf, e.Type...)
	buf = append(buf, 0)
	buf = append(buf, e.Account...)
	buf = append(buf, 0)
	buf = append(buf, e.Attributes...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.Timestamp))
	buf = binary.BigEndian.AppendUint64(buf, e.Seq)
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
