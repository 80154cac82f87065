package adapter

import (
	"fmt"
	"regexp"
	"time"
)

// BackendType identifies a storage backend variant.
type BackendType string

const (
	// BackendMySQL is the pooled, networked backend.
	BackendMySQL BackendType = "mysql"
	// BackendSQLite is the embedded, single-file backend.
	BackendSQLite BackendType = "sqlite"
)

// ParseBackendType resolves a backend name to its canonical type.
func ParseBackendType(name string) (BackendType, bool) {
	switch BackendType(name) {
	case BackendMySQL:
		return BackendMySQL, true
	case BackendSQLite:
		return BackendSQLite, true
	}
	return "", false
}

// Config is the tagged backend configuration. Type selects the variant;
// exactly one of the variant pointers must be set and must match Type.
type Config struct {
	Type   BackendType   `json:"type"`
	MySQL  *MySQLConfig  `json:"mysql,omitempty"`
	SQLite *SQLiteConfig `json:"sqlite,omitempty"`
}

// MySQLConfig holds the settings for the pooled networked backend.
type MySQLConfig struct {
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	User               string        `json:"user"`
	Password           string        `json:"password"`
	Database           string        `json:"database"`
	ConnectionLimit    int           `json:"connectionLimit,omitempty"`
	AcquireTimeout     time.Duration `json:"acquireTimeout,omitempty"`
	Timeout            time.Duration `json:"timeout,omitempty"`
	MultipleStatements bool          `json:"multipleStatements,omitempty"`
}

// SQLiteConfig holds the settings for the embedded file backend.
type SQLiteConfig struct {
	Path string `json:"path"`
	// Mode is the open mode passed to the driver: ro, rw, rwc or memory.
	Mode string `json:"mode,omitempty"`
	// Pragmas are applied in key order immediately after open, before the
	// adapter is marked ready.
	Pragmas map[string]string `json:"pragmas,omitempty"`
}

// Validate checks that exactly one variant is populated, that it matches the
// discriminant, and that its required fields are usable.
func (c Config) Validate() error {
	switch c.Type {
	case BackendMySQL:
		if c.MySQL == nil {
			return NewConfigError(c.Type, "mysql", "mysql settings missing")
		}
		if c.SQLite != nil {
			return NewConfigError(c.Type, "sqlite", "sqlite settings set on a mysql config")
		}
		return c.MySQL.validate()
	case BackendSQLite:
		if c.SQLite == nil {
			return NewConfigError(c.Type, "sqlite", "sqlite settings missing")
		}
		if c.MySQL != nil {
			return NewConfigError(c.Type, "mysql", "mysql settings set on a sqlite config")
		}
		return c.SQLite.validate()
	}
	return NewConfigError(c.Type, "type", fmt.Sprintf("unknown backend type %q", string(c.Type)))
}

func (c *MySQLConfig) validate() error {
	if c.Host == "" {
		return NewConfigError(BackendMySQL, "host", "host is required")
	}
	if c.User == "" {
		return NewConfigError(BackendMySQL, "user", "user is required")
	}
	if c.Password == "" {
		return NewConfigError(BackendMySQL, "password", "password is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return NewConfigError(BackendMySQL, "port", fmt.Sprintf("port %d out of range (0, 65535]", c.Port))
	}
	return nil
}

func (c *SQLiteConfig) validate() error {
	if c.Path == "" {
		return NewConfigError(BackendSQLite, "path", "path is required")
	}
	return nil
}

// identRe matches the only identifiers the schema-lifecycle operations will
// accept. DDL and USE cannot bind parameters, so the name is the one place
// injection could slip through the raw path.
var identRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateIdentifier rejects any schema or database name that is not safe to
// splice into a raw DDL statement.
func ValidateIdentifier(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: invalid identifier %q", ErrConfigInvalid, name)
	}
	return nil
}
