package models

import (
	"time"

	"github.com/google/uuid"
)

// Video is the metadata row for a stored video asset. The binary lives in
// the user's cloud drive under DriveItemID; this row carries the product
// metadata that default titles and descriptions are derived from.
type Video struct {
	ID          uuid.UUID `db:"id"            json:"id"`
	UserID      uuid.UUID `db:"user_id"       json:"user_id"`
	DriveItemID string    `db:"drive_item_id" json:"drive_item_id"`
	FileName    string    `db:"file_name"     json:"file_name"`
	Title       string    `db:"title"         json:"title"`
	Description string    `db:"description"   json:"description"`
	ProductName string    `db:"product_name"  json:"product_name"`
	CreatedAt   time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"    json:"updated_at"`
}

// DefaultTitle picks the title used when the caller supplies none.
func (v *Video) DefaultTitle() string {
	if v.Title != "" {
		return v.Title
	}
	if v.ProductName != "" {
		return v.ProductName
	}
	return v.FileName
}
