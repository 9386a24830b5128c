// Package store persists users, reading scores, payment requests, tariffs
// and static texts. Two backends are provided: gorm over SQLite and MongoDB.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyResolved = errors.New("request already resolved")
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

type Repository interface {
	Init(ctx context.Context) error

	UpsertUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, telegramID int64) (*User, error)
	ListUsers(ctx context.Context, page Page) ([]User, int64, error)

	AddResult(ctx context.Context, result *Result) error
	ListResults(ctx context.Context, telegramID int64, limit int) ([]Result, error)

	CreateRequest(ctx context.Context, req *PaymentRequest) error
	GetRequest(ctx context.Context, id string) (*PaymentRequest, error)
	ListRequests(ctx context.Context, telegramID int64, page Page) ([]PaymentRequest, int64, error)
	ListPendingRequests(ctx context.Context, page Page) ([]PaymentRequest, int64, error)
	ResolveRequest(ctx context.Context, id string, approve bool, today time.Time) (*Resolution, error)

	CreateTariff(ctx context.Context, tariff *Tariff) error
	GetTariff(ctx context.Context, id string) (*Tariff, error)
	ListTariffs(ctx context.Context) ([]Tariff, error)
	DeleteTariff(ctx context.Context, id string) error

	GetMessage(ctx context.Context, tag string) (*Message, error)
	PutMessage(ctx context.Context, msg *Message) error
}

// Options selects and configures a backend.
type Options struct {
	Driver   string
	DSN      string
	Database string
}

// Open connects the configured backend, runs its migrations and returns
// the repository with a function that releases it.
func Open(ctx context.Context, opts Options) (Repository, func(context.Context) error, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		return openSQLite(ctx, opts.DSN)
	case DriverMongo:
		return openMongo(ctx, opts.DSN, opts.Database)
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

func openSQLite(ctx context.Context, path string) (Repository, func(context.Context) error, error) {
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)", path)
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(2 * time.Hour)
	}

	repo := NewSQLRepository(db)
	if err := repo.Init(ctx); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return repo, func(context.Context) error { return sqlDB.Close() }, nil
}

func openMongo(ctx context.Context, uri, database string) (Repository, func(context.Context) error, error) {
	if database == "" {
		database = "mirotok"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	repo := NewMongoRepository(client.Database(database))
	if err := repo.Init(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	return repo, client.Disconnect, nil
}
