package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig tunes the underlying sql.DB. Zero values keep the driver
// defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open connects to driver ("sqlite" or "postgres") at dsn.
func Open(driver, dsn string, pool PoolConfig, logLevel logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("accounts: unsupported database driver %q", driver)
	}
	if logLevel == 0 {
		logLevel = logger.Silent
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	applyPool(sqlDB, pool)
	return db, nil
}

func applyPool(sqlDB *sql.DB, pool PoolConfig) {
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}
}

// Migrate creates or updates the accounts table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// Store is a gorm backed goAccount.AccountStore.
type Store struct {
	db *gorm.DB
}

var _ goAccount.AccountStore = (*Store)(nil)

// NewStore wraps db. The table must already exist; see Migrate.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts account. An email already in use fails with
// goAccount.ErrAccountExists.
func (s *Store) Create(ctx context.Context, account goAccount.Account) error {
	rec := fromAccount(account)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Record{}).Where("email = ?", rec.Email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return goAccount.ErrAccountExists
		}
		if err := tx.Create(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return goAccount.ErrAccountExists
			}
			return err
		}
		return nil
	})
}

func (s *Store) GetByID(ctx context.Context, accountID string) (goAccount.Account, error) {
	var rec Record
	if err := s.db.WithContext(ctx).Where("id = ?", accountID).First(&rec).Error; err != nil {
		return goAccount.Account{}, translate(err)
	}
	return rec.toAccount(), nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (goAccount.Account, error) {
	var rec Record
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&rec).Error; err != nil {
		return goAccount.Account{}, translate(err)
	}
	return rec.toAccount(), nil
}

// MarkVerified sets the verified flag. It is idempotent.
func (s *Store) MarkVerified(ctx context.Context, accountID string) error {
	now := time.Now().UTC()
	return s.update(ctx, accountID, map[string]any{
		"verified":    true,
		"verified_at": now,
	})
}

// UpdateKeys replaces the wrapped key, password salt and verifier. kA and
// the key salt are never written after Create.
func (s *Store) UpdateKeys(ctx context.Context, accountID string, update goAccount.KeyUpdate) error {
	return s.update(ctx, accountID, map[string]any{
		"wrap_kb":       update.WrapKb,
		"password_salt": update.PasswordSalt,
		"verifier_hash": update.VerifierHash,
	})
}

func (s *Store) UpdateLocale(ctx context.Context, accountID, locale string) error {
	return s.update(ctx, accountID, map[string]any{"locale": locale})
}

func (s *Store) update(ctx context.Context, accountID string, values map[string]any) error {
	res := s.db.WithContext(ctx).Model(&Record{}).Where("id = ?", accountID).Updates(values)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return goAccount.ErrAccountNotFound
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return goAccount.ErrAccountNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return goAccount.ErrAccountExists
	default:
		return err
	}
}
