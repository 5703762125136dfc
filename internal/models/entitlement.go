package models

// EntitlementModel is what a user may do: their tier and its limits.
// DailyQuestionLimit -1 means unlimited.
type EntitlementModel struct {
	Base
	UserID             string `json:"uid"                  gorm:"size:128;uniqueIndex;not null"`
	Email              string `json:"email"                gorm:"size:191;index"`
	Tier               string `json:"tier"                 gorm:"size:16;not null;default:'free'"`
	DailyQuestionLimit int    `json:"daily_question_limit" gorm:"not null"`
	CanSynthesis       bool   `json:"can_synthesis"        gorm:"not null"`
	MaxTokens          int    `json:"max_tokens"           gorm:"not null"`
}

func (EntitlementModel) TableName() string { return "entitlements" }
