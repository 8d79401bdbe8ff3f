package repository

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mbeoliero/deskline/internal/config"
	"github.com/mbeoliero/deskline/internal/entity"
)

// Repositories holds all repositories
type Repositories struct {
	DB           *gorm.DB
	Redis        *redis.Client
	Site         *SiteRepo
	Conversation *ConversationRepo
	Message      *MessageRepo
	Presence     *PresenceRepo
}

// NewRepositories opens the configured database (and Redis, if enabled) and creates all repositories
func NewRepositories(cfg *config.Config) (*Repositories, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Database.Driver {
	case "sqlite":
		db, err = initSQLite(cfg.SQLite.Path, cfg.Server.Mode)
	default:
		db, err = initMySQL(cfg)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = initRedis(cfg)
	}

	repos := NewRepositoriesWithDB(db, rdb)
	repos.Presence.ttl = cfg.Redis.PresenceTTL
	return repos, nil
}

// NewRepositoriesWithDB creates all repositories on top of existing connections. rdb may be nil.
func NewRepositoriesWithDB(db *gorm.DB, rdb *redis.Client) *Repositories {
	return &Repositories{
		DB:           db,
		Redis:        rdb,
		Site:         NewSiteRepo(db),
		Conversation: NewConversationRepo(db),
		Message:      NewMessageRepo(db),
		Presence:     NewPresenceRepo(rdb),
	}
}

// AutoMigrate creates or updates the schema
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&entity.Site{}, &entity.Conversation{}, &entity.Message{}); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

func gormLogger(mode string) logger.Interface {
	level := logger.Warn
	if mode == "debug" {
		level = logger.Info
	}
	return logger.New(stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// initMySQL initializes MySQL connection
func initMySQL(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN()), &gorm.Config{
		Logger: gormLogger(cfg.Server.Mode),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// initSQLite opens an SQLite database. SQLite allows one writer, so the pool is a single connection.
func initSQLite(dsn, mode string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger(mode),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// initRedis initializes Redis connection
func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// Close closes all connections
func (r *Repositories) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	if r.Redis != nil {
		return r.Redis.Close()
	}
	return nil
}

// Transaction executes fn in a transaction
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.DB.WithContext(ctx).Transaction(fn)
}

// CheckConnection checks if database and redis connections are alive
func (r *Repositories) CheckConnection(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		log.CtxError(ctx, "database ping failed: %v", err)
		return err
	}

	if r.Redis != nil {
		if err := r.Redis.Ping(ctx).Err(); err != nil {
			log.CtxError(ctx, "redis ping failed: %v", err)
			return err
		}
	}

	return nil
}
