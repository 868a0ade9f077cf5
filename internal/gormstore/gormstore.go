// Package gormstore is a persist.Backend over SQLite through GORM.
//
// It shares the records table layout and the strata_sqlite3 driver with
// package store, so both backends return identical results for any query.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/persist"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/querysql"
	"github.com/roach88/strata/internal/record"
	"github.com/roach88/strata/internal/store"
)

type recordRow struct {
	Seq       int64  `gorm:"column:seq;primaryKey;autoIncrement"`
	RecordID  string `gorm:"column:id;uniqueIndex;not null"`
	Entity    string `gorm:"column:entity;index:idx_records_entity,priority:1;not null"`
	Attrs     string `gorm:"column:attrs;not null;default:'{}'"`
	Checksum  string `gorm:"column:checksum;not null;default:''"`
	CreatedAt int64  `gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt int64  `gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (recordRow) TableName() string { return "records" }

// Store is the GORM implementation of persist.Backend.
type Store struct {
	db         *gorm.DB
	identifier string
	compiler   *querysql.SQLCompiler
}

var _ persist.Backend = (*Store)(nil)

// Open opens (or creates) a SQLite database through GORM and migrates the
// records table. identifier defaults to path.
func Open(path, identifier string) (*Store, error) {
	// Suppress GORM logging; failures surface as StoreErrors instead
	db, err := gorm.Open(sqlite.Dialector{DriverName: store.DriverName, DSN: path}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := store.ApplyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := db.AutoMigrate(&recordRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate records: %w", err)
	}

	if identifier == "" {
		identifier = path
	}
	return New(db, identifier), nil
}

// New wraps an existing GORM connection whose records table already exists.
func New(db *gorm.DB, identifier string) *Store {
	return &Store{
		db:         db,
		identifier: identifier,
		compiler:   querysql.NewSQLCompiler(),
	}
}

// Identifier returns the name carried on pending updates.
func (s *Store) Identifier() string {
	return s.identifier
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the GORM handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Fetch returns records of q.Entity matching q, in query order.
//
// When q.BatchSize is set and the query has no sort keys or offset, rows
// are loaded with FindInBatches; its seq ordering equals the default order.
func (s *Store) Fetch(ctx context.Context, q queryir.Query) ([]record.Snapshot, error) {
	op := "fetch " + q.Entity

	if err := queryir.Check(q); err != nil {
		return nil, persist.ReadFailure(op, err)
	}

	tx := s.db.WithContext(ctx).Model(&recordRow{}).Where("entity = ?", q.Entity)
	if q.Filter != nil {
		where, params, err := s.compiler.CompileWhere(q.Filter)
		if err != nil {
			return nil, persist.ReadFailure(op, err)
		}
		// Parenthesized so GORM never reads a bare "1" as a primary key.
		tx = tx.Where("("+where+")", params...)
	}
	tx = tx.Order(querysql.OrderBy(q.Sort))
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}

	var rows []recordRow
	if q.BatchSize > 0 && len(q.Sort) == 0 && q.Offset == 0 {
		var batch []recordRow
		result := tx.FindInBatches(&batch, q.BatchSize, func(_ *gorm.DB, _ int) error {
			rows = append(rows, batch...)
			return nil
		})
		if result.Error != nil {
			return nil, persist.ReadFailure(op, result.Error)
		}
	} else if err := tx.Find(&rows).Error; err != nil {
		return nil, persist.ReadFailure(op, err)
	}

	snapshots := make([]record.Snapshot, 0, len(rows))
	for _, row := range rows {
		var attrs ir.IRObject
		if err := json.Unmarshal([]byte(row.Attrs), &attrs); err != nil {
			return nil, persist.ReadFailure(op, fmt.Errorf("record %s: %w", row.RecordID, err))
		}
		snapshots = append(snapshots, record.Snapshot{
			ID:     row.RecordID,
			Entity: row.Entity,
			Seq:    row.Seq,
			Attrs:  attrs,
		})
	}
	return snapshots, nil
}

// Apply stores a change set in one GORM transaction. Semantics match
// store.Store.Apply: a missing update target fails the set, a missing
// delete target is ignored.
func (s *Store) Apply(ctx context.Context, changes record.ChangeSet) error {
	if changes.Empty() {
		return nil
	}

	seqs := make([]int64, 0, len(changes.Inserts))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, snap := range changes.Inserts {
			row, err := toRow(snap)
			if err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert %s %s: %w", snap.Entity, snap.ID, err)
			}
			seqs = append(seqs, row.Seq)
		}

		for _, snap := range changes.Updates {
			row, err := toRow(snap)
			if err != nil {
				return err
			}
			result := tx.Model(&recordRow{}).
				Where("id = ? AND entity = ?", snap.ID, snap.Entity).
				Updates(map[string]any{"attrs": row.Attrs, "checksum": row.Checksum})
			if result.Error != nil {
				return fmt.Errorf("update %s %s: %w", snap.Entity, snap.ID, result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("update %s %s: %w", snap.Entity, snap.ID, persist.ErrRecordNotFound)
			}
		}

		for _, snap := range changes.Deletes {
			err := tx.Where("id = ? AND entity = ?", snap.ID, snap.Entity).Delete(&recordRow{}).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("delete %s %s: %w", snap.Entity, snap.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return persist.WriteFailure("apply", err)
	}
	for i, seq := range seqs {
		changes.Inserts[i].Seq = seq
	}
	return nil
}

func toRow(snap record.Snapshot) (recordRow, error) {
	attrs := snap.Attrs
	if attrs == nil {
		attrs = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(attrs)
	if err != nil {
		return recordRow{}, fmt.Errorf("%s %s: marshal attrs: %w", snap.Entity, snap.ID, err)
	}
	checksum, err := ir.RecordChecksum(snap.Entity, attrs)
	if err != nil {
		return recordRow{}, fmt.Errorf("%s %s: %w", snap.Entity, snap.ID, err)
	}
	return recordRow{
		RecordID: snap.ID,
		Entity:   snap.Entity,
		Attrs:    string(data),
		Checksum: checksum,
	}, nil
}

// Verify returns the IDs of records whose stored checksum no longer
// matches their attributes, ordered by seq.
func (s *Store) Verify(ctx context.Context) ([]string, error) {
	mismatched := []string{}
	var batch []recordRow
	result := s.db.WithContext(ctx).Model(&recordRow{}).
		FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
			for _, row := range batch {
				var attrs ir.IRObject
				if err := json.Unmarshal([]byte(row.Attrs), &attrs); err != nil {
					mismatched = append(mismatched, row.RecordID)
					continue
				}
				sum, err := ir.RecordChecksum(row.Entity, attrs)
				if err != nil || sum != row.Checksum {
					mismatched = append(mismatched, row.RecordID)
				}
			}
			return nil
		})
	if result.Error != nil {
		return nil, persist.ReadFailure("verify", result.Error)
	}
	return mismatched, nil
}
