package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Club 部活动，预算持有单位
type Club struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"type:varchar(128);index;not null" json:"name"`
	TotalBudget decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_budget"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Club) TableName() string {
	return "ks_clubs"
}

const (
	UserRoleMember      = "member"
	UserRoleAdmin       = "admin"
	UserRoleAdvisor     = "advisor"
	UserRoleApprover    = "approver"
	UserRoleGlobalAdmin = "global_admin"
)

// User 外部身份映射到的内部用户，一个用户只属于一个部活动
type User struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthUID      string         `gorm:"type:varchar(64);index;not null" json:"auth_uid"`
	ClubID       int64          `gorm:"index;not null" json:"club_id"`
	DisplayName  string         `gorm:"type:varchar(64);not null" json:"display_name"`
	Role         string         `gorm:"type:varchar(20);not null;default:member" json:"role"`
	ApproverRole string         `gorm:"type:varchar(20);not null;default:''" json:"approver_role"` // 可代表的承认角色，仅在开启角色校验时使用
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "ks_users"
}

// CanAccessAdmin 角色只控制管理画面的访问，不限制承认角色
func (u *User) CanAccessAdmin() bool {
	switch u.Role {
	case UserRoleGlobalAdmin, UserRoleApprover, UserRoleAdvisor:
		return true
	}
	return false
}
