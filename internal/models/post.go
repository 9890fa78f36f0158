package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Visibility controls who may see a post.
type Visibility string

const (
	VisibilityPublic    Visibility = "PUBLIC"
	VisibilityPrivate   Visibility = "PRIVATE"
	VisibilityFollowers Visibility = "FOLLOWERS"
)

// ParseVisibility accepts any casing of the three known values.
func ParseVisibility(s string) (Visibility, error) {
	v := Visibility(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityFollowers:
		return v, nil
	}
	return "", fmt.Errorf("unknown visibility %q", s)
}

type Post struct {
	ID          int            `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `json:"description"`
	Category    string         `gorm:"index" json:"category"`
	Tags        pq.StringArray `gorm:"type:text[]" json:"tags"`
	Visibility  Visibility     `gorm:"type:varchar(16);not null;default:PRIVATE" json:"visibility"`
	IsDraft     bool           `gorm:"not null;default:true" json:"is_draft"`
	CoverImage  *string        `gorm:"type:varchar(1024)" json:"cover_image"`
	OwnerID     int            `gorm:"not null;index" json:"owner_id"`
	Owner       User           `gorm:"foreignKey:OwnerID" json:"-"`
	Images      []Image        `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"images"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsPubliclyVisible reports whether viewers other than the owner may read the post.
func (p *Post) IsPubliclyVisible() bool {
	return !p.IsDraft && p.Visibility == VisibilityPublic
}
