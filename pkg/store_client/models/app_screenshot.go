package models

type DeviceType string

const (
	DeviceTypeIPhone DeviceType = "iphone"
	DeviceTypeIPad   DeviceType = "ipad"
)

// Legacy screenshotURLs carry no size; assume a 9:16 iPhone 8 screen.
const (
	LegacyScreenshotWidth  = 750
	LegacyScreenshotHeight = 1334
)

type AppScreenshot struct {
	ID         string     `gorm:"column:id;primaryKey" json:"-"`
	AppID      string     `gorm:"column:app_id;index" json:"-"`
	SourceID   string     `gorm:"column:source_id;index" json:"-"`
	ImageURL   string     `gorm:"column:image_url;not null" json:"imageURL"`
	Width      *int       `gorm:"column:width" json:"width,omitempty"`
	Height     *int       `gorm:"column:height" json:"height,omitempty"`
	DeviceType DeviceType `gorm:"column:device_type;size:16" json:"deviceType"`
	SortIndex  int        `gorm:"column:sort_index" json:"-"`
}
