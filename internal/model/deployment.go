package model

import (
	"time"

	"gorm.io/datatypes"
)

// DeploymentStatus 部署任务状态
type DeploymentStatus string

const (
	DeploymentStatusPending  DeploymentStatus = "pending"
	DeploymentStatusBuilding DeploymentStatus = "building"
	DeploymentStatusSuccess  DeploymentStatus = "success"
	DeploymentStatusFailed   DeploymentStatus = "failed"
)

// IsTerminal reports whether the status allows no further transitions.
func (s DeploymentStatus) IsTerminal() bool {
	return s == DeploymentStatusSuccess || s == DeploymentStatusFailed
}

// Deployment 一次构建+发布尝试（每次触发新建一行，到达终态后不再变更）
type Deployment struct {
	BaseModel
	SiteID int              `gorm:"not null;index" json:"siteId"`
	Status DeploymentStatus `gorm:"type:enum('pending','building','success','failed');default:'pending';index" json:"status"`

	BuildLog     string         `gorm:"type:longtext" json:"buildLog"` // 追加式构建日志，按行
	CommitRef    string         `gorm:"type:varchar(64)" json:"commitRef"`
	PublishedURL string         `gorm:"type:varchar(1024)" json:"publishedUrl"`
	Files        datatypes.JSON `gorm:"type:json" json:"files"` // 生成文件清单（路径列表）
	ErrorMsg     string         `gorm:"type:text" json:"errorMsg"`
	Attempts     int            `gorm:"default:0" json:"attempts"`

	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`

	Site *Site `gorm:"foreignKey:SiteID" json:"site,omitempty"`
}

// TableName 指定表名
func (Deployment) TableName() string {
	return "deployments"
}
