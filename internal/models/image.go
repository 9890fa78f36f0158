package models

import "time"

// Image is one media asset attached to a post. StorageKey is the normalized
// object key of URL and is unique per post.
type Image struct {
	ID          int       `gorm:"primaryKey" json:"id"`
	PostID      int       `gorm:"not null;uniqueIndex:idx_images_post_key" json:"post_id"`
	URL         string    `gorm:"type:varchar(1024);not null" json:"url"`
	StorageKey  string    `gorm:"type:varchar(1024);not null;uniqueIndex:idx_images_post_key" json:"-"`
	Description *string   `json:"description"`
	Position    int       `gorm:"not null;default:0" json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
