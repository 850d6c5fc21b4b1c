package settings

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sealbox/sealbox/internal/util"
)

// Default creation limits. MinRetention is a floor, not a setting: no
// object may live shorter than a minute.
const (
	DefaultMaxTextLength = 100000
	DefaultMaxFileCount  = 10
	DefaultMaxFileSize   = int64(100 << 20) // 100 MB
	DefaultMaxRetention  = int64(7 * 24 * 3600)
	MinRetention         = int64(60)
)

// Manager manages system settings stored in SQLite
type Manager struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewManager creates a new settings manager
func NewManager(db *sql.DB, logger *logrus.Logger) (*Manager, error) {
	m := &Manager{
		db:     db,
		logger: logger,
	}

	if err := m.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := m.insertDefaults(); err != nil {
		return nil, fmt.Errorf("failed to insert defaults: %w", err)
	}

	return m, nil
}

// initSchema creates the system_settings table
func (m *Manager) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS system_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		type TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT,
		editable INTEGER DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_settings_category ON system_settings(category);
	`

	_, err := m.db.Exec(query)
	return err
}

// insertDefaults inserts default settings if they don't exist
func (m *Manager) insertDefaults() error {
	defaults := []Setting{
		{
			Key:         "system.mode",
			Value:       ModePublic,
			Type:        string(TypeString),
			Category:    string(CategorySystem),
			Description: "Access mode: public allows anonymous creation, private requires an invite link or admin session",
			Editable:    true,
		},
		{
			Key:         "limits.max_text_length",
			Value:       strconv.Itoa(DefaultMaxTextLength),
			Type:        string(TypeInt),
			Category:    string(CategoryLimits),
			Description: "Maximum text body length in characters",
			Editable:    true,
		},
		{
			Key:         "limits.max_file_count",
			Value:       strconv.Itoa(DefaultMaxFileCount),
			Type:        string(TypeInt),
			Category:    string(CategoryLimits),
			Description: "Maximum number of files per object",
			Editable:    true,
		},
		{
			Key:         "limits.max_file_size",
			Value:       strconv.FormatInt(DefaultMaxFileSize, 10),
			Type:        string(TypeInt),
			Category:    string(CategoryLimits),
			Description: "Maximum size of a single file in bytes",
			Editable:    true,
		},
		{
			Key:         "limits.max_retention",
			Value:       strconv.FormatInt(DefaultMaxRetention, 10),
			Type:        string(TypeInt),
			Category:    string(CategoryLimits),
			Description: "Maximum retention in seconds",
			Editable:    true,
		},
	}

	query := `
	INSERT OR IGNORE INTO system_settings (key, value, type, category, description, editable, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().Unix()
	for _, setting := range defaults {
		_, err := m.db.Exec(query,
			setting.Key,
			setting.Value,
			setting.Type,
			setting.Category,
			setting.Description,
			setting.Editable,
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert default setting %s: %w", setting.Key, err)
		}
	}

	return nil
}

// Get retrieves a setting value as a string
func (m *Manager) Get(key string) (string, error) {
	var value string
	query := `SELECT value FROM system_settings WHERE key = ?`
	err := m.db.QueryRow(query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting not found: %s", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// GetInt retrieves a setting value as an integer
func (m *Manager) GetInt(key string) (int, error) {
	value, err := m.Get(key)
	if err != nil {
		return 0, err
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("setting %s is not a valid integer: %w", key, err)
	}
	return intValue, nil
}

// GetInt64 retrieves a setting value as a 64-bit integer
func (m *Manager) GetInt64(key string) (int64, error) {
	value, err := m.Get(key)
	if err != nil {
		return 0, err
	}

	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("setting %s is not a valid integer: %w", key, err)
	}
	return intValue, nil
}

// GetBool retrieves a setting value as a boolean
func (m *Manager) GetBool(key string) (bool, error) {
	value, err := m.Get(key)
	if err != nil {
		return false, err
	}

	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("setting %s is not a valid boolean: %s", key, value)
	}
}

// GetSetting retrieves a full setting object
func (m *Manager) GetSetting(key string) (*Setting, error) {
	query := `
	SELECT key, value, type, category, description, editable, created_at, updated_at
	FROM system_settings
	WHERE key = ?
	`

	var setting Setting
	var createdAt, updatedAt int64
	err := m.db.QueryRow(query, key).Scan(
		&setting.Key,
		&setting.Value,
		&setting.Type,
		&setting.Category,
		&setting.Description,
		&setting.Editable,
		&createdAt,
		&updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("setting not found: %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}

	setting.CreatedAt = time.Unix(createdAt, 0)
	setting.UpdatedAt = time.Unix(updatedAt, 0)

	return &setting, nil
}

// Set updates a setting value
func (m *Manager) Set(key, value string) error {
	setting, err := m.GetSetting(key)
	if err != nil {
		return err
	}

	if !setting.Editable {
		return fmt.Errorf("setting %s is not editable", key)
	}

	// Size-valued limits accept human specs like "100mb"; the stored value
	// is always the normalized byte count.
	if key == "limits.max_file_size" {
		n, err := util.ParseSize(value)
		if err != nil {
			return fmt.Errorf("invalid value for setting %s: %w", key, err)
		}
		value = strconv.FormatInt(n, 10)
	}

	if err := m.validateValue(key, value, setting.Type); err != nil {
		return fmt.Errorf("invalid value for setting %s: %w", key, err)
	}

	query := `UPDATE system_settings SET value = ?, updated_at = ? WHERE key = ?`
	_, err = m.db.Exec(query, value, time.Now().Unix(), key)
	if err != nil {
		return fmt.Errorf("failed to update setting: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"key":   key,
		"value": value,
	}).Info("Setting updated")

	return nil
}

// validateValue validates a value based on its type
func (m *Manager) validateValue(key, value, settingType string) error {
	switch settingType {
	case string(TypeInt):
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("value must be a valid integer")
		}
		if n < 0 {
			return fmt.Errorf("value must not be negative")
		}
	case string(TypeBool):
		lowerValue := strings.ToLower(value)
		if lowerValue != "true" && lowerValue != "false" && lowerValue != "1" && lowerValue != "0" {
			return fmt.Errorf("value must be true, false, 1, or 0")
		}
	case string(TypeString):
		if key == "system.mode" && value != ModePublic && value != ModePrivate {
			return fmt.Errorf("value must be %s or %s", ModePublic, ModePrivate)
		}
	default:
		return fmt.Errorf("unknown type: %s", settingType)
	}
	return nil
}

// ListAll retrieves all settings
func (m *Manager) ListAll() ([]Setting, error) {
	query := `
	SELECT key, value, type, category, description, editable, created_at, updated_at
	FROM system_settings
	ORDER BY category, key
	`

	rows, err := m.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var setting Setting
		var createdAt, updatedAt int64

		err := rows.Scan(
			&setting.Key,
			&setting.Value,
			&setting.Type,
			&setting.Category,
			&setting.Description,
			&setting.Editable,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}

		setting.CreatedAt = time.Unix(createdAt, 0)
		setting.UpdatedAt = time.Unix(updatedAt, 0)

		settings = append(settings, setting)
	}

	return settings, rows.Err()
}

// BulkUpdate updates multiple settings at once
func (m *Manager) BulkUpdate(updates map[string]string) error {
	for key, value := range updates {
		if err := m.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Mode returns the current access mode, falling back to public on error.
func (m *Manager) Mode() string {
	mode, err := m.Get("system.mode")
	if err != nil {
		m.logger.WithError(err).Warn("Failed to read access mode, assuming public")
		return ModePublic
	}
	return mode
}

// Limits returns the current creation limits. Unreadable values fall back
// to the compiled-in defaults so a corrupted row never blocks creation.
func (m *Manager) Limits() Limits {
	limits := Limits{
		MaxTextLength: DefaultMaxTextLength,
		MaxFileCount:  DefaultMaxFileCount,
		MaxFileSize:   DefaultMaxFileSize,
		MaxRetention:  DefaultMaxRetention,
	}

	if v, err := m.GetInt("limits.max_text_length"); err == nil {
		limits.MaxTextLength = v
	}
	if v, err := m.GetInt("limits.max_file_count"); err == nil {
		limits.MaxFileCount = v
	}
	if v, err := m.GetInt64("limits.max_file_size"); err == nil {
		limits.MaxFileSize = v
	}
	if v, err := m.GetInt64("limits.max_retention"); err == nil {
		limits.MaxRetention = v
	}

	return limits
}
