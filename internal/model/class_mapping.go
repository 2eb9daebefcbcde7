package model

import "gorm.io/datatypes"

// ClassMapping 每个 (site, template) 的 CSS 类名双射（站点存续期内稳定）
type ClassMapping struct {
	BaseModel
	SiteID     int            `gorm:"not null;uniqueIndex:uk_class_mappings_site_tpl" json:"siteId"`
	TemplateID int            `gorm:"not null;uniqueIndex:uk_class_mappings_site_tpl" json:"templateId"`
	CSSHash    string         `gorm:"type:varchar(64)" json:"cssHash"` // 模板样式表哈希，变更即失效
	Mapping    datatypes.JSON `gorm:"type:json" json:"mapping"`        // original→unique
}

// TableName 指定表名
func (ClassMapping) TableName() string {
	return "class_mappings"
}
