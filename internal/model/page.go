package model

import "gorm.io/datatypes"

// Page 站点页面（有序 block 列表，仅枚举可渲染页面）
type Page struct {
	BaseModel
	SiteID    int            `gorm:"not null;index;uniqueIndex:uk_pages_site_slug" json:"siteId"`
	Slug      string         `gorm:"type:varchar(255);uniqueIndex:uk_pages_site_slug" json:"slug"`
	Title     string         `gorm:"type:varchar(255)" json:"title"`
	Published bool           `gorm:"default:false;index" json:"published"`
	Blocks    datatypes.JSON `gorm:"type:json" json:"blocks"` // [{type, content}, ...] 按序
	SortOrder int            `gorm:"default:0" json:"sortOrder"`
}

// TableName 指定表名
func (Page) TableName() string {
	return "pages"
}
