package database

import (
	"errors"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite" // Sqlite driver based on CGO
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("record not found")

// InitDB opens (or creates) the SQLite database at the given path and
// automigrates the given tables.
func InitDB(path string, conf gorm.Config, tables ...interface{}) (*gorm.DB, error) {
	if conf.Logger == nil {
		conf.Logger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(sqlite.Open(path), &conf)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(tables...); err != nil {
		return nil, err
	}

	log.Infof("database ready at %s", path)
	return db, nil
}

// DataStore wraps a gorm handle with typed CRUD for one model.
type DataStore[T any] struct {
	db   *gorm.DB
	name string
}

func NewDataStore[T any](db *gorm.DB, name string) *DataStore[T] {
	return &DataStore[T]{db: db, name: name}
}

func (s *DataStore[T]) Name() string {
	return s.name
}

// DB exposes the underlying handle for store-specific queries.
func (s *DataStore[T]) DB() *gorm.DB {
	return s.db
}

// WithTx returns a store bound to the given transaction handle.
func (s *DataStore[T]) WithTx(tx *gorm.DB) *DataStore[T] {
	return &DataStore[T]{db: tx, name: s.name}
}

func (s *DataStore[T]) Insert(rec *T) error {
	return s.db.Create(rec).Error
}

// Update persists all fields of the record.
func (s *DataStore[T]) Update(rec *T) error {
	return s.db.Save(rec).Error
}

func (s *DataStore[T]) Delete(id string) error {
	var instance T
	return s.db.Delete(&instance, "id = ?", id).Error
}

// GetByID returns the record with the given ID, or ErrNotFound.
func (s *DataStore[T]) GetByID(id string) (*T, error) {
	var rec T
	result := s.db.First(&rec, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &rec, nil
}

// Find returns all records matching the given query.
func (s *DataStore[T]) Find(query interface{}, args ...interface{}) ([]T, error) {
	var recs []T
	result := s.db.Where(query, args...).Find(&recs)
	return recs, result.Error
}

func (s *DataStore[T]) All() ([]T, error) {
	var recs []T
	result := s.db.Find(&recs)
	return recs, result.Error
}

func (s *DataStore[T]) Count(query interface{}, args ...interface{}) (int64, error) {
	var instance T
	var count int64
	result := s.db.Model(&instance).Where(query, args...).Count(&count)
	return count, result.Error
}
