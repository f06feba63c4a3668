package models

import (
	"time"
)

// AuditAction represents the type of audit action
type AuditAction string

const (
	AuditActionCreate  AuditAction = "create"
	AuditActionUpdate  AuditAction = "update"
	AuditActionDelete  AuditAction = "delete"
	AuditActionLogin   AuditAction = "login"
	AuditActionLogout  AuditAction = "logout"
	AuditActionArchive AuditAction = "archive"
	AuditActionRestore AuditAction = "restore"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	UserID      uint        `gorm:"index" json:"user_id"`
	User        *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Username    string      `gorm:"size:100" json:"username"`
	Role        UserRole    `json:"role"`
	Action      AuditAction `gorm:"size:50;not null;index" json:"action"`
	EntityType  string      `gorm:"size:50;index" json:"entity_type"` // summary, user, billing
	EntityID    uint        `gorm:"index" json:"entity_id"`
	EntityName  string      `gorm:"size:100" json:"entity_name"`
	Description string      `gorm:"size:500" json:"description"`
	IPAddress   string      `gorm:"size:50" json:"ip_address"`
	UserAgent   string      `gorm:"size:255" json:"user_agent"`
	CreatedAt   time.Time   `gorm:"index" json:"created_at"`
}

// SystemPreference represents system-wide preferences
type SystemPreference struct {
	ID        uint   `gorm:"column:id;primaryKey" json:"id"`
	Key       string `gorm:"column:key;size:100;uniqueIndex;not null" json:"key"`
	Value     string `gorm:"column:value;type:text" json:"value"`
	ValueType string `gorm:"column:value_type;size:20;default:string" json:"value_type"` // string, int, bool, json
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

func (SystemPreference) TableName() string {
	return "system_preferences"
}
