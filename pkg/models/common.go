package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewUUID generates a new UUID string
func NewUUID() string {
	return uuid.New().String()
}

// UnixTime is stored as integer unix seconds so the same schema works on
// PostgreSQL and SQLite.
type UnixTime struct {
	time.Time
}

func NewUnixTime(t time.Time) UnixTime {
	return UnixTime{Time: t.UTC().Truncate(time.Second)}
}

func (u UnixTime) Value() (driver.Value, error) {
	if u.IsZero() {
		return int64(0), nil
	}
	return u.Unix(), nil
}

func (u *UnixTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		u.Time = time.Time{}
	case int64:
		u.Time = fromUnix(v)
	case float64:
		u.Time = fromUnix(int64(v))
	case []byte:
		return u.parse(string(v))
	case string:
		return u.parse(v)
	case time.Time:
		u.Time = v.UTC()
	default:
		return fmt.Errorf("cannot scan %T into UnixTime", value)
	}
	return nil
}

func (u *UnixTime) parse(s string) error {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("cannot scan %q into UnixTime: %w", s, err)
	}
	u.Time = fromUnix(n)
	return nil
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}
