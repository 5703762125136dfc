// Package entitlement stores which tier each user holds and the limits that
// come with it.
package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/tarotlab/fortune-core/internal/models"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/tier"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("entitlement not found")

// Entitlement is the resolved view of a user's grant.
type Entitlement struct {
	UserID             string    `json:"uid,omitempty"`
	Email              string    `json:"email,omitempty"`
	Tier               tier.Tier `json:"tier"`
	DailyQuestionLimit int       `json:"dailyQuestionLimit"`
	CanSynthesis       bool      `json:"canSynthesis"`
	MaxTokens          int       `json:"maxTokens"`
}

// Anonymous is what callers without a verified identity get.
func Anonymous() Entitlement {
	return withDefaults(Entitlement{}, tier.Free)
}

// Unlimited reports whether the daily limit is the unlimited sentinel.
func (e Entitlement) Unlimited() bool { return e.DailyQuestionLimit == tier.Unlimited }

func withDefaults(e Entitlement, t tier.Tier) Entitlement {
	d := t.Defaults()
	e.Tier = t
	e.DailyQuestionLimit = d.DailyQuestionLimit
	e.CanSynthesis = d.CanSynthesis
	e.MaxTokens = d.MaxTokens
	return e
}

func fromModel(m *models.EntitlementModel) Entitlement {
	t, err := tier.Parse(m.Tier)
	if err != nil {
		t = tier.Free
	}
	return Entitlement{
		UserID:             m.UserID,
		Email:              m.Email,
		Tier:               t,
		DailyQuestionLimit: m.DailyQuestionLimit,
		CanSynthesis:       m.CanSynthesis,
		MaxTokens:          m.MaxTokens,
	}
}

func toModel(e Entitlement) models.EntitlementModel {
	return models.EntitlementModel{
		UserID:             e.UserID,
		Email:              e.Email,
		Tier:               e.Tier.String(),
		DailyQuestionLimit: e.DailyQuestionLimit,
		CanSynthesis:       e.CanSynthesis,
		MaxTokens:          e.MaxTokens,
	}
}

type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) Get(ctx context.Context, userID string) (Entitlement, error) {
	var m models.EntitlementModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Entitlement{}, ErrNotFound
		}
		return Entitlement{}, fmt.Errorf("load entitlement %s: %w", userID, err)
	}
	return fromModel(&m), nil
}

// Provision creates a free entitlement for the user if none exists.
// It reports whether a row was created.
func (s *Service) Provision(ctx context.Context, userID, email string) (Entitlement, bool, error) {
	m := models.EntitlementModel{}
	attrs := toModel(withDefaults(Entitlement{UserID: userID, Email: email}, tier.Free))

	res := s.db.WithContext(ctx).
		Where(models.EntitlementModel{UserID: userID}).
		Attrs(attrs).
		FirstOrCreate(&m)
	if res.Error != nil {
		// A concurrent provision won the unique index; read its row.
		if e, err := s.Get(ctx, userID); err == nil {
			return e, false, nil
		}
		return Entitlement{}, false, fmt.Errorf("provision entitlement %s: %w", userID, res.Error)
	}
	return fromModel(&m), res.RowsAffected > 0, nil
}

// Resolve returns the user's entitlement, provisioning a free one on first sight.
func (s *Service) Resolve(ctx context.Context, userID, email string) (Entitlement, error) {
	e, err := s.Get(ctx, userID)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Entitlement{}, err
	}
	e, _, err = s.Provision(ctx, userID, email)
	return e, err
}

// SetTier moves the user to t and resets the limits to that tier's defaults.
func (s *Service) SetTier(ctx context.Context, userID string, t tier.Tier) (Entitlement, error) {
	if _, _, err := s.Provision(ctx, userID, ""); err != nil {
		return Entitlement{}, err
	}

	d := t.Defaults()
	err := s.db.WithContext(ctx).
		Model(&models.EntitlementModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"tier":                 t.String(),
			"daily_question_limit": d.DailyQuestionLimit,
			"can_synthesis":        d.CanSynthesis,
			"max_tokens":           d.MaxTokens,
		}).Error
	if err != nil {
		return Entitlement{}, fmt.Errorf("set tier %s for %s: %w", t, userID, err)
	}
	return s.Get(ctx, userID)
}
