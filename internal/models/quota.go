package models

// QuotaUsageModel counts accepted requests of one user on one calendar day.
// Rows are created lazily and kept as history.
type QuotaUsageModel struct {
	Base
	UserID    string `json:"uid"        gorm:"size:128;not null;uniqueIndex:ux_quota_user_day,priority:1"`
	DateKey   string `json:"date_key"   gorm:"size:10;not null;uniqueIndex:ux_quota_user_day,priority:2"`
	UsedCount int    `json:"used_count" gorm:"not null;default:0"`
}

func (QuotaUsageModel) TableName() string { return "quota_usages" }
