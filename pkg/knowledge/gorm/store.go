package gorm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/barekit/relnotes/pkg/knowledge"
	"github.com/barekit/relnotes/pkg/lock"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 200

// LeaseTTL bounds how long a lease left by a crashed process blocks the key.
const LeaseTTL = time.Hour

// Store implements knowledge.Backend on any GORM dialect without native vector
// support. Vectors are stored as JSON and ranked in process.
type Store struct {
	db *gorm.DB
}

// EntryModel represents the database schema for an index entry.
type EntryModel struct {
	Collection string                 `gorm:"primaryKey;size:191"`
	Seq        int                    `gorm:"primaryKey;autoIncrement:false"`
	EntryID    string                 `gorm:"size:64;index"`
	Content    string                 `gorm:"type:text"`
	Metadata   map[string]interface{} `gorm:"serializer:json;type:text"`
	Vector     []float32              `gorm:"serializer:json;type:text"`
}

// TableName overrides the table name.
func (EntryModel) TableName() string {
	return "vector_entries"
}

// CollectionModel stores the active generation of each logical collection.
type CollectionModel struct {
	Name   string `gorm:"primaryKey;size:191"`
	Active string `gorm:"size:191"`
}

// TableName overrides the table name.
func (CollectionModel) TableName() string {
	return "vector_collections"
}

// LeaseModel is an exclusive lease on a key, held by one process until released
// or expired.
type LeaseModel struct {
	Name      string    `gorm:"primaryKey;size:191"`
	Holder    string    `gorm:"size:64"`
	ExpiresAt time.Time `gorm:"index"`
}

// TableName overrides the table name.
func (LeaseModel) TableName() string {
	return "vector_locks"
}

// New migrates the schema on db and returns the store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&EntryModel{}, &CollectionModel{}, &LeaseModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) ResetCollection(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Where("collection = ?", name).Delete(&EntryModel{}).Error
}

func (s *Store) Upsert(ctx context.Context, name string, entries []knowledge.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	models := make([]EntryModel, len(entries))
	for i, e := range entries {
		models[i] = EntryModel{
			Collection: name,
			Seq:        e.Seq,
			EntryID:    e.ID,
			Content:    e.Content,
			Metadata:   e.Metadata,
			Vector:     e.Vector,
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "seq"}},
			DoUpdates: clause.AssignmentColumns([]string{"entry_id", "content", "metadata", "vector"}),
		}).CreateInBatches(&models, insertBatchSize).Error
	})
}

func (s *Store) Search(ctx context.Context, name string, query []float32, k int) ([]knowledge.Entry, error) {
	var models []EntryModel
	if err := s.db.WithContext(ctx).Where("collection = ?", name).Order("seq asc").Find(&models).Error; err != nil {
		return nil, err
	}
	return rank(models, query, k), nil
}

// SearchActive resolves the active collection and reads its entries in one statement.
func (s *Store) SearchActive(ctx context.Context, logical string, query []float32, k int) ([]knowledge.Entry, error) {
	var models []EntryModel
	err := s.db.WithContext(ctx).
		Select("vector_entries.*").
		Joins("JOIN vector_collections ON vector_collections.active = vector_entries.collection").
		Where("vector_collections.name = ?", logical).
		Order("vector_entries.seq asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return rank(models, query, k), nil
}

func rank(models []EntryModel, query []float32, k int) []knowledge.Entry {
	candidates := make([]knowledge.Entry, len(models))
	for i, m := range models {
		candidates[i] = knowledge.Entry{
			ID:       m.EntryID,
			Seq:      m.Seq,
			Content:  m.Content,
			Metadata: m.Metadata,
			Vector:   m.Vector,
		}
	}
	return knowledge.Rank(candidates, query, k)
}

func (s *Store) Count(ctx context.Context, name string) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&EntryModel{}).Where("collection = ?", name).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) Active(ctx context.Context, logical string) (string, error) {
	var c CollectionModel
	err := s.db.WithContext(ctx).Where("name = ?", logical).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return c.Active, nil
}

func (s *Store) Activate(ctx context.Context, logical, from, to string) error {
	db := s.db.WithContext(ctx)
	var res *gorm.DB
	if from == "" {
		res = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&CollectionModel{Name: logical, Active: to})
	} else {
		res = db.Model(&CollectionModel{}).Where("name = ? AND active = ?", logical, from).Update("active", to)
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s no longer points at %q", knowledge.ErrActiveChanged, logical, from)
	}
	return nil
}

// WithLock holds key as a row in vector_locks, shared by every process using the
// database. Expired leases are taken over.
func (s *Store) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	holder := uuid.NewString()
	now := time.Now()
	db := s.db.WithContext(ctx)

	if err := db.Where("name = ? AND expires_at < ?", key, now).Delete(&LeaseModel{}).Error; err != nil {
		return fmt.Errorf("failed to clear expired lease: %w", err)
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&LeaseModel{Name: key, Holder: holder, ExpiresAt: now.Add(LeaseTTL)})
	if res.Error != nil {
		return fmt.Errorf("failed to acquire lease: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return lock.ErrLocked
	}

	defer func() {
		err := s.db.WithContext(context.WithoutCancel(ctx)).
			Where("name = ? AND holder = ?", key, holder).Delete(&LeaseModel{}).Error
		if err != nil {
			slog.Warn("failed to release lease", "key", key, "error", err)
		}
	}()
	return fn(ctx)
}
