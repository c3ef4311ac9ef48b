package models

import "time"

// Source is a remote catalog listing StoreApps.
type Source struct {
	ID              string     `gorm:"column:id;primaryKey" json:"identifier"`
	Name            string     `gorm:"column:name;not null" json:"name"`
	SourceURL       string     `gorm:"column:source_url;uniqueIndex;not null" json:"sourceURL"`
	Subtitle        *string    `gorm:"column:subtitle" json:"subtitle,omitempty"`
	Description     *string    `gorm:"column:description;type:text" json:"description,omitempty"`
	IconURL         *string    `gorm:"column:icon_url" json:"iconURL,omitempty"`
	Website         *string    `gorm:"column:website" json:"website,omitempty"`
	TintColor       *string    `gorm:"column:tint_color;size:6" json:"tintColor,omitempty"`
	Hash            string     `gorm:"column:hash" json:"-"`
	LastRefreshedAt *time.Time `gorm:"column:last_refreshed_at" json:"lastRefreshedAt,omitempty"`
	Apps            []StoreApp `gorm:"foreignKey:SourceID" json:"apps,omitempty"`
	CreatedAt       time.Time  `gorm:"column:created_at" json:"-"`
	UpdatedAt       time.Time  `gorm:"column:updated_at" json:"-"`
}
