package eventdb

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainhook/forwarder/internal/constants"
)

// JSON is a []byte that round-trips through a jsonb column without pulling in
// a separate datatypes dependency.
type JSON []byte

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("unsupported type for JSON column: %T", value)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

var _ json.Marshaler = JSON{}
var _ json.Unmarshaler = (*JSON)(nil)

// StoredEvent is a single deduplicated, write-once webhook callback.
// The unique index on (provider, event_hash) is what enforces P2: the same
// payload from the same provider is stored at most once.
type StoredEvent struct {
	ID         string    `gorm:"column:id;type:uuid;primaryKey"`
	Provider   string    `gorm:"column:provider;type:varchar(50);not null;index:idx_provider;uniqueIndex:idx_provider_hash,priority:1"`
	EventType  string    `gorm:"column:event_type;type:varchar(100);not null;index:idx_event_type"`
	EventData  JSON      `gorm:"column:event_data;type:jsonb;not null"`
	EventHash  string    `gorm:"column:event_hash;type:char(64);not null;uniqueIndex:idx_provider_hash,priority:2"`
	ReceivedAt time.Time `gorm:"column:received_at;type:timestamptz;not null;index:idx_received_at"`
	SourceIP   string    `gorm:"column:source_ip;type:inet"`
	Headers    JSON      `gorm:"column:headers;type:jsonb"`
}

// TableName pins the table name regardless of GORM's pluralization rules.
// The schema itself is selected by the connection's search_path (set in
// New's DSN preparation), not baked into the name here, so the same model
// works unqualified against SQLite in tests.
func (StoredEvent) TableName() string {
	return constants.EventsTable
}
