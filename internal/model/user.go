package model

// UserStatus 用户状态
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// User 面板用户（bcrypt 密码哈希，角色用于授权）
type User struct {
	BaseModel
	Username     string     `gorm:"type:varchar(64);uniqueIndex:uk_users_username;not null" json:"username"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`
	Role         string     `gorm:"type:varchar(32);default:'admin'" json:"role"`
	Status       UserStatus `gorm:"type:enum('active','inactive');default:'active'" json:"status"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
