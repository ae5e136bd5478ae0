package index

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Post is one row of the relational index.
type Post struct {
	PostID    string `gorm:"primaryKey;size:36"`
	FileID    string `gorm:"not null;size:36"`
	CreatedAt time.Time
}

// SQLIndex is an Index kept in a relational database through gorm.
type SQLIndex struct {
	db *gorm.DB
}

// NewSQLIndex migrates the schema on db and returns an index using it.
func NewSQLIndex(db *gorm.DB) (*SQLIndex, error) {
	if err := db.AutoMigrate(&Post{}); err != nil {
		return nil, fmt.Errorf("could not migrate index schema: %w", err)
	}
	return &SQLIndex{db: db}, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file and returns an
// index stored in it.
func OpenSQLite(path string) (*SQLIndex, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("could not open %q: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer at a time; queue in the pool instead of
	// failing with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	return NewSQLIndex(db)
}

func (x *SQLIndex) Put(id, key string) error {
	post := Post{PostID: id, FileID: key, CreatedAt: time.Now().UTC()}
	err := x.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"file_id", "created_at"}),
	}).Create(&post).Error
	if err != nil {
		return fmt.Errorf("could not insert post %q: %w", id, err)
	}
	return nil
}

func (x *SQLIndex) Get(id string) (string, error) {
	var post Post
	if err := x.db.Take(&post, "post_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("post %q: %w", id, ErrNotFound)
		}
		return "", err
	}
	return post.FileID, nil
}

// Close releases the underlying database connection pool.
func (x *SQLIndex) Close() error {
	sqlDB, err := x.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
