package models

type PermissionType string

const (
	PermissionTypeEntitlement PermissionType = "entitlement"
	PermissionTypePrivacy     PermissionType = "privacy"
)

// AppPermission is an entitlement or privacy usage the app declares. Legacy
// catalogs use free-form types such as "photos" or "camera".
type AppPermission struct {
	ID               string         `gorm:"column:id;primaryKey" json:"-"`
	AppID            string         `gorm:"column:app_id;index" json:"-"`
	SourceID         string         `gorm:"column:source_id;index" json:"-"`
	Type             PermissionType `gorm:"column:type;size:64" json:"type"`
	Permission       string         `gorm:"column:permission" json:"permission"`
	UsageDescription *string        `gorm:"column:usage_description;type:text" json:"usageDescription,omitempty"`
	SortIndex        int            `gorm:"column:sort_index" json:"-"`
}
