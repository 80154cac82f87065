package mysql

import (
	"errors"
	"net"
	"strings"
	"syscall"

	mysqldrv "github.com/go-sql-driver/mysql"

	"github.com/officepass/officepass/internal/database/adapter"
)

// MySQL server error numbers this layer classifies.
const (
	errAccessDeniedForUser = 1044 // ER_DBACCESS_DENIED_ERROR
	errAccessDenied        = 1045 // ER_ACCESS_DENIED_ERROR
	errBadDatabase         = 1049 // ER_BAD_DB_ERROR
)

// classifyConnectionError maps a failed connection attempt to the typed
// ConnectionError taxonomy. Constraint and statement errors are not routed
// through here; they propagate unmodified.
func classifyConnectionError(host string, port int, err error) error {
	kind := adapter.ConnUnknown

	var myErr *mysqldrv.MySQLError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &myErr):
		switch myErr.Number {
		case errAccessDenied, errAccessDeniedForUser:
			kind = adapter.ConnAuthFailed
		case errBadDatabase:
			kind = adapter.ConnUnknownDatabase
		}
	case errors.As(err, &dnsErr):
		kind = adapter.ConnHostUnresolved
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = adapter.ConnRefused
	case strings.Contains(err.Error(), "connection refused"):
		kind = adapter.ConnRefused
	case strings.Contains(err.Error(), "no such host"):
		kind = adapter.ConnHostUnresolved
	}

	return adapter.NewConnectionError(adapter.BackendMySQL, host, port, kind, err)
}

// looselyOne reports whether a probe result is the value 1 under the
// driver's possible representations. Numeric results may arrive as text.
func looselyOne(v interface{}) bool {
	switch val := v.(type) {
	case int64:
		return val == 1
	case int:
		return val == 1
	case float64:
		return val == 1
	case []byte:
		return string(val) == "1"
	case string:
		return val == "1"
	}
	return false
}

// quoteIdentifier backtick-quotes an identifier for the raw statement path.
// Callers must validate the name first.
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
