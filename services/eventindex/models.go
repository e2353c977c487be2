package eventindex

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed event. Sequence orders records in emission
// order across restarts.
type EventRecord struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Sequence   uint64         `gorm:"uniqueIndex"`
	Height     uint64         `gorm:"index"`
	Type       string         `gorm:"size:64;index"`
	Attributes string         `gorm:"type:text"`
	Accounts   []EventAccount `gorm:"foreignKey:EventID"`
	CreatedAt  time.Time
}

// EventAccount links an event to every account it mentions, keyed by the
// attribute that named it (addr, funder, from, to, owner, spender).
type EventAccount struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventID uuid.UUID `gorm:"type:uuid;index"`
	Account string    `gorm:"size:128;index"`
	Role    string    `gorm:"size:32"`
}

// AutoMigrate runs schema migrations for the index tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{}, &EventAccount{})
}
