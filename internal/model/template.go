package model

// Template 站群模板（HTML/CSS/JS 骨架，多个站点共享）
type Template struct {
	BaseModel
	Name string `gorm:"type:varchar(255);uniqueIndex:uk_templates_name" json:"name"`
	HTML string `gorm:"type:longtext" json:"html"` // 含 {{var}} 占位符
	CSS  string `gorm:"type:longtext" json:"css"`
	JS   string `gorm:"type:longtext" json:"js"`

	// 能力开关
	SupportsColorCustom bool `gorm:"default:false" json:"supportsColorCustom"`
	SupportsPageSpeed   bool `gorm:"default:false" json:"supportsPageSpeed"`
}

// TableName 指定表名
func (Template) TableName() string {
	return "templates"
}
