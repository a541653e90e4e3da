package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"anoa.com/casethreads/pkg/apperror"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultQueryTimeout bounds every store call unless overridden by SetQueryTimeout.
const DefaultQueryTimeout = 10 * time.Second

var (
	DB   *gorm.DB
	once sync.Once

	queryTimeout = DefaultQueryTimeout
)

type Options struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	Debug    bool
}

func Connect(opts Options) (*gorm.DB, error) {
	var err error
	once.Do(func() {
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			opts.Host, opts.User, opts.Password, opts.Name, opts.Port,
		)

		cfg := &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Warn),
			TranslateError: true,
		}
		if opts.Debug {
			cfg.Logger = logger.Default.LogMode(logger.Info)
		}

		var db *gorm.DB
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			err = fmt.Errorf("failed to connect database: %w", err)
			return
		}

		DB = db
	})

	return DB, err
}

// SetQueryTimeout changes the bound applied by WithTimeout. Non-positive values are ignored.
func SetQueryTimeout(d time.Duration) {
	if d > 0 {
		queryTimeout = d
	}
}

// WithTimeout derives a context bounded by the configured query timeout.
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}

// Translate maps driver and gorm errors onto the apperror taxonomy.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", apperror.ErrNotFound, err)
	}
	if isForeignKeyViolation(err) {
		// The referenced row is gone, typically deleted concurrently.
		return fmt.Errorf("%w: %v", apperror.ErrNotFound, err)
	}
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: %v", apperror.ErrConflict, err)
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", apperror.ErrStoreUnavailable, err)
	}
	return err
}

func isForeignKeyViolation(err error) bool {
	return errors.Is(err, gorm.ErrForeignKeyViolated) ||
		containsAny(err.Error(), "SQLSTATE 23503", "FOREIGN KEY constraint failed")
}

func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		containsAny(err.Error(), "SQLSTATE 23505", "UNIQUE constraint failed")
}

func containsAny(msg string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	return containsAny(err.Error(),
		"connection reset by peer",
		"broken pipe",
		"connection refused",
		"no connection",
		"i/o timeout",
		"too many connections",
		"database is locked",
		"EOF",
	)
}
