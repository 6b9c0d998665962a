// Package ledgerStore persists group treasuries as JSON documents, one row per
// group. The backing store has no multi-document transaction primitive the
// engine can rely on, so all mutations go through Update, which serializes
// writers per group with a keyed mutex. Mutations to different groups run
// fully concurrently.
package ledgerStore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/groupfi/treasury-engine/pkg/ledger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrGroupNotFound = errors.New("group treasury not found")

// GroupStore is the persistence surface the settlement engine depends on.
type GroupStore interface {
	Load(ctx context.Context, groupID string) (*ledger.Treasury, error)
	Save(ctx context.Context, treasury *ledger.Treasury) error
	// Update loads the group's treasury, applies mutate, and persists the
	// result, holding the group's writer lock for the whole read-modify-write.
	Update(ctx context.Context, groupID string, mutate func(*ledger.Treasury) error) (*ledger.Treasury, error)
	CountGroups(ctx context.Context) (int64, error)
}

// GroupRecord is the stored shape: the full treasury serialized as one JSON
// document.
type GroupRecord struct {
	GroupID   string `gorm:"column:group_id;primaryKey"`
	Document  string `gorm:"column:document"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GroupRecord) TableName() string {
	return "group_treasuries"
}

type Store struct {
	db     *gorm.DB
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(db *gorm.DB, l *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&GroupRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate group treasuries table: %w", err)
	}
	return &Store{
		db:     db,
		logger: l,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) groupLock(groupID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[groupID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[groupID] = lock
	}
	return lock
}

func (s *Store) Load(ctx context.Context, groupID string) (*ledger.Treasury, error) {
	var record GroupRecord
	res := s.db.WithContext(ctx).First(&record, "group_id = ?", groupID)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrGroupNotFound, "groupId '%s'", groupID)
		}
		return nil, fmt.Errorf("failed to load group '%s': %w", groupID, res.Error)
	}

	var treasury ledger.Treasury
	if err := json.Unmarshal([]byte(record.Document), &treasury); err != nil {
		return nil, fmt.Errorf("failed to decode treasury document for group '%s': %w", groupID, err)
	}
	return &treasury, nil
}

func (s *Store) Save(ctx context.Context, treasury *ledger.Treasury) error {
	document, err := json.Marshal(treasury)
	if err != nil {
		return fmt.Errorf("failed to encode treasury document for group '%s': %w", treasury.GroupID, err)
	}

	record := &GroupRecord{
		GroupID:  treasury.GroupID,
		Document: string(document),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
	}).Create(record)
	if res.Error != nil {
		return fmt.Errorf("failed to save group '%s': %w", treasury.GroupID, res.Error)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, groupID string, mutate func(*ledger.Treasury) error) (*ledger.Treasury, error) {
	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	treasury, err := s.Load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := mutate(treasury); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, treasury); err != nil {
		return nil, err
	}
	return treasury, nil
}

func (s *Store) CountGroups(ctx context.Context) (int64, error) {
	var count int64
	res := s.db.WithContext(ctx).Model(&GroupRecord{}).Count(&count)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to count groups: %w", res.Error)
	}
	return count, nil
}
