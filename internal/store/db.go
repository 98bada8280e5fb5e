// Package store persists assistant data with gorm. Postgres is used when the
// URL has a postgres scheme, sqlite otherwise.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/capitalize-ai/assistant-engine/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("record not found")

// Options configures Open.
type Options struct {
	URL           string
	SlowThreshold time.Duration
	Silent        bool
}

// Open connects to the database described by opts.URL.
func Open(opts Options) (*gorm.DB, error) {
	dialector := dialectorFor(opts.URL)

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	if opts.Silent {
		gormLog = gormLogger.Default.LogMode(gormLogger.Silent)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, ok := dialector.(*sqlite.Dialector); ok {
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func dialectorFor(url string) gorm.Dialector {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return postgres.Open(url)
	}
	return sqlite.Open(strings.TrimPrefix(url, "sqlite://"))
}

// Migrate creates or updates all tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Conversation{},
		&model.Message{},
		&model.Task{},
		&model.CalendarEvent{},
		&model.Email{},
		&model.Memory{},
		&model.Note{},
	)
}

// Ping checks database reachability.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func likePattern(q string) string {
	return "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
}

// Repos bundles every repository over one database handle.
type Repos struct {
	Conversations ConversationRepo
	Tasks         TaskRepo
	Events        EventRepo
	Emails        EmailRepo
	Memories      MemoryRepo
	Notes         NoteRepo
}

// NewRepos returns gorm-backed repositories sharing db.
func NewRepos(db *gorm.DB) Repos {
	return Repos{
		Conversations: NewConversationRepo(db),
		Tasks:         NewTaskRepo(db),
		Events:        NewEventRepo(db),
		Emails:        NewEmailRepo(db),
		Memories:      NewMemoryRepo(db),
		Notes:         NewNoteRepo(db),
	}
}
