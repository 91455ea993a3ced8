package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

const (
	GenerationStatusPending    = "pending"
	GenerationStatusProcessing = "processing"
	GenerationStatusCompleted  = "completed"
	GenerationStatusFailed     = "failed"
)

// JSON stores raw JSON documents in a database column.
type JSON json.RawMessage

// Value implements the driver.Valuer interface
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements the sql.Scanner interface
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = JSON("{}")
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid scan source")
	}
	*j = JSON(bytes)
	return nil
}

// MarshalJSON implements the json.Marshaler interface
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = JSON(data)
	return nil
}

// Generation is one request-to-produce-an-image workflow instance.
// Lifecycle: pending -> processing -> completed|failed. Dispatch failure
// fails it synchronously from pending. Terminal rows are never mutated.
type Generation struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	UUID             string        `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"uuid"`
	UserID           uint          `gorm:"index;not null" json:"user_id"`
	User             User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	JewelryID        uint          `gorm:"index;not null" json:"jewelry_id"`
	Jewelry          JewelryUpload `gorm:"foreignKey:JewelryID" json:"jewelry,omitempty"`
	PromptModel      string        `gorm:"type:text;not null" json:"prompt_model"`
	PromptDecor      string        `gorm:"type:text;not null" json:"prompt_decor"`
	Status           string        `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	ResultImageURL   *string       `gorm:"type:varchar(512);default:null" json:"result_image_url,omitempty"`
	ErrorMessage     *string       `gorm:"type:text;default:null" json:"error_message,omitempty"`
	HasWatermark     bool          `gorm:"not null;default:true" json:"has_watermark"`
	Resolution       string        `gorm:"type:varchar(16);not null;default:'low'" json:"resolution"`
	ProcessingTimeMs *int64        `gorm:"type:bigint;default:null" json:"processing_time_ms,omitempty"`
	Metadata         *JSON         `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt        time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the generation reached a final state.
func (g *Generation) IsTerminal() bool {
	return g.Status == GenerationStatusCompleted || g.Status == GenerationStatusFailed
}
