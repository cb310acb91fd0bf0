package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shcallaway/gmail-mcp-server/internal/logging"
)

// SQLiteStore implements TokenStore on a SQLite database via gorm.
type SQLiteStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ TokenStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and runs
// migrations. Pass ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithComponent(logger, "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	// WAL keeps reads from blocking the upsert-heavy callback path.
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if err := db.Exec("PRAGMA foreign_keys=ON").Error; err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := db.AutoMigrate(&GmailCredentials{}, &OAuthState{}); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("database initialized", slog.String("path", path))

	return &SQLiteStore{db: db, logger: logger}, nil
}

// GetCredentials returns the credential row for a user, or (nil, nil) when
// none exists.
func (s *SQLiteStore) GetCredentials(ctx context.Context, mcpUserID string) (*GmailCredentials, error) {
	var creds GmailCredentials
	err := s.db.WithContext(ctx).First(&creds, "mcp_user_id = ?", mcpUserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get credentials: %v", ErrStoreUnavailable, err)
	}
	return &creds, nil
}

// SaveCredentials inserts or replaces a user's credential row. On conflict
// every column except the primary key and created_at is overwritten, so a
// re-link picks up new tokens while the original link time survives.
func (s *SQLiteStore) SaveCredentials(ctx context.Context, creds *GmailCredentials) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "mcp_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"google_user_id", "email", "access_token", "refresh_token",
			"expiry_date", "scope", "updated_at",
		}),
	}).Create(creds).Error
	if err != nil {
		return fmt.Errorf("%w: save credentials: %v", ErrStoreUnavailable, err)
	}

	s.logger.Info("credentials saved",
		logging.Operation("credentials.save"),
		logging.UserHash(creds.Email))
	return nil
}

// UpdateAccessToken patches the access token and expiry for a user. The
// stored refresh token is only rotated when a new encrypted one is given.
func (s *SQLiteStore) UpdateAccessToken(ctx context.Context, mcpUserID, accessToken string, expiryDate int64, encryptedRefreshToken string) error {
	updates := map[string]any{
		"access_token": accessToken,
		"expiry_date":  expiryDate,
		"updated_at":   time.Now().UnixMilli(),
	}
	if encryptedRefreshToken != "" {
		updates["refresh_token"] = encryptedRefreshToken
	}

	res := s.db.WithContext(ctx).Model(&GmailCredentials{}).
		Where("mcp_user_id = ?", mcpUserID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("%w: update access token: %v", ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no credentials for user %s", mcpUserID)
	}
	return nil
}

// DeleteCredentials removes a user's credential row.
func (s *SQLiteStore) DeleteCredentials(ctx context.Context, mcpUserID string) error {
	err := s.db.WithContext(ctx).Delete(&GmailCredentials{}, "mcp_user_id = ?", mcpUserID).Error
	if err != nil {
		return fmt.Errorf("%w: delete credentials: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SaveOAuthState records a new single-use CSRF state.
func (s *SQLiteStore) SaveOAuthState(ctx context.Context, state *OAuthState) error {
	err := s.db.WithContext(ctx).Create(state).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateState
	}
	if err != nil {
		return fmt.Errorf("%w: save oauth state: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ConsumeOAuthState atomically fetches and deletes a non-expired state. The
// select and delete run in one transaction so two concurrent consumers of
// the same state cannot both succeed.
func (s *SQLiteStore) ConsumeOAuthState(ctx context.Context, state string) (*OAuthState, error) {
	var row OAuthState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&row, "state = ? AND expires_at > ?", state, time.Now().UnixMilli()).Error
		if err != nil {
			return err
		}
		return tx.Delete(&OAuthState{}, "state = ?", state).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: consume oauth state: %v", ErrStoreUnavailable, err)
	}
	return &row, nil
}

// CleanupExpiredStates deletes all expired ledger entries.
func (s *SQLiteStore) CleanupExpiredStates(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&OAuthState{}, "expires_at <= ?", time.Now().UnixMilli())
	if res.Error != nil {
		return 0, fmt.Errorf("%w: cleanup expired states: %v", ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("expired oauth states removed",
			logging.Operation("states.cleanup"),
			slog.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// Close releases the underlying sql.DB.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
