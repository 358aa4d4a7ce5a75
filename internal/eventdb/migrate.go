package eventdb

import (
	"context"
	"fmt"

	"github.com/chainhook/forwarder/internal/constants"
)

// AutoMigrate creates or updates the raw_webhook_events table to match
// StoredEvent, inside the forwarder's dedicated schema. It is the service's
// entire migration surface: one table, isolated to this service, per the
// storage invariants. SQLite has no schema concept, so the CREATE SCHEMA
// step only runs against Postgres.
func (e *EventDB) AutoMigrate(ctx context.Context) error {
	if e.dialect == DialectPostgres {
		if err := e.db.WithContext(ctx).Exec("CREATE SCHEMA IF NOT EXISTS " + constants.SchemaName).Error; err != nil {
			return fmt.Errorf("creating schema %s: %w", constants.SchemaName, err)
		}
	}
	if err := e.db.WithContext(ctx).AutoMigrate(&StoredEvent{}); err != nil {
		return fmt.Errorf("migrating %s table: %w", StoredEvent{}.TableName(), err)
	}
	return nil
}
