package model

import "gorm.io/datatypes"

// Site 站点配置（租户拥有，绑定模板与域名）
type Site struct {
	BaseModel
	Domain     string `gorm:"type:varchar(255);uniqueIndex:uk_sites_domain" json:"domain"`
	BrandName  string `gorm:"type:varchar(255)" json:"brandName"`
	Language   string `gorm:"type:varchar(16);default:'en'" json:"language"`
	TemplateID int    `gorm:"not null;index" json:"templateId"`

	Variables datatypes.JSON `gorm:"type:json" json:"variables"` // 变量表 key→value
	Colors    datatypes.JSON `gorm:"type:json" json:"colors"`    // 自定义颜色 name→#hex

	ClassPool   string `gorm:"type:varchar(64)" json:"classPool"`    // 命名池（可选）
	FaviconPath string `gorm:"type:varchar(1024)" json:"faviconPath"` // 源图路径（可选）

	// 功能开关
	EnablePageSpeed   bool `gorm:"default:false" json:"enablePageSpeed"`
	Redirect404ToHome bool `gorm:"default:false" json:"redirect404ToHome"`
	UseWwwVersion     bool `gorm:"default:false" json:"useWwwVersion"`

	Status string `gorm:"type:enum('active','inactive');default:'active'" json:"status"`

	// 关联
	Template *Template `gorm:"foreignKey:TemplateID" json:"template,omitempty"`
	Pages    []Page    `gorm:"foreignKey:SiteID" json:"pages,omitempty"`
}

// TableName 指定表名
func (Site) TableName() string {
	return "sites"
}

// Status constants
const (
	SiteStatusActive   = "active"
	SiteStatusInactive = "inactive"
)
