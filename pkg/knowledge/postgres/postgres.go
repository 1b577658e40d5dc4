package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/barekit/relnotes/pkg/knowledge"
	"github.com/barekit/relnotes/pkg/lock"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 500

// PostgresStore implements knowledge.Backend using pgvector.
type PostgresStore struct {
	db *gorm.DB
}

// EntryModel represents the database schema for an index entry.
type EntryModel struct {
	Collection string          `gorm:"primaryKey;size:191"`
	Seq        int             `gorm:"primaryKey;autoIncrement:false"`
	EntryID    string          `gorm:"size:64;index"`
	Content    string          `gorm:"type:text"`
	Metadata   []byte          `gorm:"type:jsonb"`
	Embedding  pgvector.Vector `gorm:"type:vector"` // Dimension is enforced by knowledge.VectorIndex
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

// New creates a PostgresStore over an open database handle.
func New(conn *sql.DB) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewWithDB(db)
}

// Open creates a PostgresStore from a DSN.
func Open(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewWithDB(db)
}

// NewWithDB prepares the schema on db and returns the store.
func NewWithDB(db *gorm.DB) (*PostgresStore, error) {
	// Enable pgvector extension
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
	}

	if err := db.AutoMigrate(&EntryModel{}, &CollectionModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ResetCollection(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Where("collection = ?", name).Delete(&EntryModel{}).Error
}

func (s *PostgresStore) Upsert(ctx context.Context, name string, entries []knowledge.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	models := make([]EntryModel, len(entries))
	for i, e := range entries {
		metadataJSON := []byte("{}")
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata for entry %s: %w", e.ID, err)
			}
			metadataJSON = b
		}
		models[i] = EntryModel{
			Collection: name,
			Seq:        e.Seq,
			EntryID:    e.ID,
			Content:    e.Content,
			Metadata:   metadataJSON,
			Embedding:  pgvector.NewVector(e.Vector),
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "seq"}},
			DoUpdates: clause.AssignmentColumns([]string{"entry_id", "content", "metadata", "embedding"}),
		}).CreateInBatches(&models, insertBatchSize).Error
	})
}

type scoredRow struct {
	Seq      int
	EntryID  string
	Content  string
	Metadata []byte
	Distance float64
}

func (s *PostgresStore) Search(ctx context.Context, name string, query []float32, k int) ([]knowledge.Entry, error) {
	var rows []scoredRow

	// pgvector operator for cosine distance is <=>; similarity is 1 - distance
	err := s.db.WithContext(ctx).
		Model(&EntryModel{}).
		Select("seq, entry_id, content, metadata, embedding <=> ? AS distance", pgvector.NewVector(query)).
		Where("collection = ?", name).
		Order("distance ASC, seq ASC").
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toEntries(rows)
}

// SearchActive joins the pointer row so the generation is resolved and searched
// in one statement.
func (s *PostgresStore) SearchActive(ctx context.Context, logical string, query []float32, k int) ([]knowledge.Entry, error) {
	var rows []scoredRow

	err := s.db.WithContext(ctx).
		Model(&EntryModel{}).
		Select("vector_entries.seq, vector_entries.entry_id, vector_entries.content, vector_entries.metadata, "+
			"vector_entries.embedding <=> ? AS distance", pgvector.NewVector(query)).
		Joins("JOIN vector_collections ON vector_collections.active = vector_entries.collection").
		Where("vector_collections.name = ?", logical).
		Order("distance ASC, vector_entries.seq ASC").
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toEntries(rows)
}

func toEntries(rows []scoredRow) ([]knowledge.Entry, error) {
	entries := make([]knowledge.Entry, len(rows))
	for i, r := range rows {
		var metadata map[string]interface{}
		if len(r.Metadata) > 0 {
			if err := json.Unmarshal(r.Metadata, &metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for entry %s: %w", r.EntryID, err)
			}
		}
		entries[i] = knowledge.Entry{
			ID:       r.EntryID,
			Seq:      r.Seq,
			Content:  r.Content,
			Metadata: metadata,
			Score:    float32(1 - r.Distance),
		}
	}
	return entries, nil
}

func (s *PostgresStore) Count(ctx context.Context, name string) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&EntryModel{}).Where("collection = ?", name).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PostgresStore) Active(ctx context.Context, logical string) (string, error) {
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

// Activate flips the pointer row in a single conditional statement; readers
// resolve either the old or the new generation, never a partial one.
func (s *PostgresStore) Activate(ctx context.Context, logical, from, to string) error {
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

// WithLock holds a session-level advisory lock on key for the duration of fn. The
// lock lives on one pooled connection and is released by Postgres if the
// process dies.
func (s *PostgresStore) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to reserve connection: %w", err)
	}
	defer conn.Close()

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", key).Scan(&acquired); err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	if !acquired {
		return lock.ErrLocked
	}

	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock(hashtext($1))", key); err != nil {
			slog.Warn("failed to release advisory lock", "key", key, "error", err)
		}
	}()
	return fn(ctx)
}
