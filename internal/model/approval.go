package model

import (
	"time"
)

const (
	ApprovalRoleDepartment    = "部署担当者"
	ApprovalRoleVicePrincipal = "教頭"
	ApprovalRoleDeputyHead    = "副校長"
	ApprovalRolePrincipal     = "校長"
	ApprovalRoleBoardChairman = "理事長"
)

// ApprovalRoles 固定的五个承认者角色
// 顺序只用于展示，不构成审批先后的限制
var ApprovalRoles = []string{
	ApprovalRoleDepartment,
	ApprovalRoleVicePrincipal,
	ApprovalRoleDeputyHead,
	ApprovalRolePrincipal,
	ApprovalRoleBoardChairman,
}

func IsApprovalRole(role string) bool {
	for _, r := range ApprovalRoles {
		if r == role {
			return true
		}
	}
	return false
}

// ApprovalEntry 某个角色的一次承认，写入后不可修改
type ApprovalEntry struct {
	Role       string    `json:"role"`
	Name       string    `json:"name"`
	ApprovedAt time.Time `json:"approved_at"`
}

// ApprovalFlow 承认记录，按承认发生的顺序排列，同一角色最多出现一次
type ApprovalFlow []ApprovalEntry

// Has 判断角色是否已承认
func (f ApprovalFlow) Has(role string) bool {
	for _, e := range f {
		if e.Role == role {
			return true
		}
	}
	return false
}

// Entry 返回角色对应的承认记录
func (f ApprovalFlow) Entry(role string) (ApprovalEntry, bool) {
	for _, e := range f {
		if e.Role == role {
			return e, true
		}
	}
	return ApprovalEntry{}, false
}

// Complete 五个角色是否全部承认（与顺序无关）
func (f ApprovalFlow) Complete() bool {
	for _, role := range ApprovalRoles {
		if !f.Has(role) {
			return false
		}
	}
	return true
}

// Append 返回追加了 entry 的新记录，不修改原切片
func (f ApprovalFlow) Append(entry ApprovalEntry) ApprovalFlow {
	next := make(ApprovalFlow, 0, len(f)+1)
	next = append(next, f...)
	return append(next, entry)
}
