package models

import "time"

const (
	JewelryTypeRing     = "ring"
	JewelryTypeNecklace = "necklace"
	JewelryTypeEarring  = "earring"
	JewelryTypeBracelet = "bracelet"
	JewelryTypeSet      = "set"
)

// IsValidJewelryType reports whether t is one of the supported categories.
func IsValidJewelryType(t string) bool {
	switch t {
	case JewelryTypeRing, JewelryTypeNecklace, JewelryTypeEarring, JewelryTypeBracelet, JewelryTypeSet:
		return true
	}
	return false
}

// JewelryUpload is one product photo a user uploaded. Rows are immutable
// after creation and referenced by zero or more generations.
type JewelryUpload struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UUID             string    `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"uuid"`
	UserID           uint      `gorm:"index;not null" json:"user_id"`
	User             User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	StoragePath      string    `gorm:"type:varchar(255);not null" json:"storage_path"`
	PublicURL        string    `gorm:"type:varchar(512);not null" json:"public_url"`
	PreviewURL       string    `gorm:"type:varchar(512);default:null" json:"preview_url,omitempty"`
	JewelryType      string    `gorm:"type:varchar(32);not null" json:"jewelry_type"`
	OriginalFilename string    `gorm:"type:varchar(255)" json:"original_filename"`
	FileSize         int64     `gorm:"type:bigint" json:"file_size"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}
