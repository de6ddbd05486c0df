package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hugh/dealdesk/internal/api/validation"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/pkg/cache"
	"github.com/hugh/dealdesk/pkg/config"
	"github.com/hugh/dealdesk/pkg/util"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KeyMaxSeats             = "max_seats"
	KeyBillingPeriodMonths  = "billing_period_months"
	KeyBillingPeriodDays    = "billing_period_days"
	KeyInvitationExpiryDays = "invitation_expiry_days"
	KeyFreeAnalysisLimit    = "free_analysis_limit"
)

var ErrInvalidSettings = errors.New("invalid settings")

// SettingsError lists rejected settings by key.
type SettingsError struct {
	Fields map[string]string
}

func (e *SettingsError) Error() string { return ErrInvalidSettings.Error() }

func (e *SettingsError) Unwrap() error { return ErrInvalidSettings }

// Settings are the operator-tunable limits.
type Settings struct {
	MaxSeats             int `json:"max_seats" validate:"gte=1,lte=100000"`
	BillingPeriodMonths  int `json:"billing_period_months" validate:"gte=0,lte=36"`
	BillingPeriodDays    int `json:"billing_period_days" validate:"gte=0,lte=366"`
	InvitationExpiryDays int `json:"invitation_expiry_days" validate:"gte=1,lte=90"`
	FreeAnalysisLimit    int `json:"free_analysis_limit" validate:"gte=0,lte=1000"`
}

func (s Settings) BillingPeriod() billing.BillingPeriod {
	return billing.BillingPeriod{Months: s.BillingPeriodMonths, Days: s.BillingPeriodDays}
}

func (s Settings) values() map[string]int {
	return map[string]int{
		KeyMaxSeats:             s.MaxSeats,
		KeyBillingPeriodMonths:  s.BillingPeriodMonths,
		KeyBillingPeriodDays:    s.BillingPeriodDays,
		KeyInvitationExpiryDays: s.InvitationExpiryDays,
		KeyFreeAnalysisLimit:    s.FreeAnalysisLimit,
	}
}

func (s *Settings) set(key string, v int) bool {
	switch key {
	case KeyMaxSeats:
		s.MaxSeats = v
	case KeyBillingPeriodMonths:
		s.BillingPeriodMonths = v
	case KeyBillingPeriodDays:
		s.BillingPeriodDays = v
	case KeyInvitationExpiryDays:
		s.InvitationExpiryDays = v
	case KeyFreeAnalysisLimit:
		s.FreeAnalysisLimit = v
	default:
		return false
	}
	return true
}

func (s Settings) validate() map[string]string {
	errs := validation.Struct(s)
	if s.BillingPeriodMonths == 0 && s.BillingPeriodDays == 0 {
		errs[KeyBillingPeriodMonths] = "either months or days must be positive"
	}
	return errs
}

// DefaultSettings derives settings from static configuration.
func DefaultSettings(cfg *config.Config) Settings {
	return Settings{
		MaxSeats:             cfg.Billing.MaxSeats,
		BillingPeriodMonths:  cfg.Billing.BillingPeriodMonths,
		BillingPeriodDays:    cfg.Billing.BillingPeriodDays,
		InvitationExpiryDays: cfg.Team.InvitationExpiryDays,
		FreeAnalysisLimit:    cfg.Analysis.FreeLimit,
	}
}

// SettingsUpdate carries a partial change; nil fields are left alone.
type SettingsUpdate struct {
	MaxSeats             *int `json:"max_seats"`
	BillingPeriodMonths  *int `json:"billing_period_months"`
	BillingPeriodDays    *int `json:"billing_period_days"`
	InvitationExpiryDays *int `json:"invitation_expiry_days"`
	FreeAnalysisLimit    *int `json:"free_analysis_limit"`
}

func (u SettingsUpdate) apply(s Settings) Settings {
	if u.MaxSeats != nil {
		s.MaxSeats = *u.MaxSeats
	}
	if u.BillingPeriodMonths != nil {
		s.BillingPeriodMonths = *u.BillingPeriodMonths
	}
	if u.BillingPeriodDays != nil {
		s.BillingPeriodDays = *u.BillingPeriodDays
	}
	if u.InvitationExpiryDays != nil {
		s.InvitationExpiryDays = *u.InvitationExpiryDays
	}
	if u.FreeAnalysisLimit != nil {
		s.FreeAnalysisLimit = *u.FreeAnalysisLimit
	}
	return s
}

const settingsCacheKey = "settings"

// SettingsService reads settings rows over configured defaults and caches
// the merged result. It satisfies billing.Limits, team.ExpirySource and
// analysis.Limits.
type SettingsService struct {
	db       *gorm.DB
	defaults Settings
	cache    *cache.TTL[string, Settings]
	clock    util.Clock
	logger   *slog.Logger
}

func NewSettingsService(db *gorm.DB, defaults Settings, ttl time.Duration, clock util.Clock, logger *slog.Logger) *SettingsService {
	if clock == nil {
		clock = util.SystemClock()
	}
	return &SettingsService{
		db:       db,
		defaults: defaults,
		cache:    cache.NewTTL[string, Settings](ttl, clock),
		clock:    clock,
		logger:   logger,
	}
}

func (s *SettingsService) Get(ctx context.Context) (Settings, error) {
	return s.cache.GetOrLoad(settingsCacheKey, func() (Settings, error) {
		return s.load(ctx)
	})
}

func (s *SettingsService) load(ctx context.Context) (Settings, error) {
	var rows []models.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return Settings{}, fmt.Errorf("loading settings: %w", err)
	}

	out := s.defaults
	for _, row := range rows {
		v, err := strconv.Atoi(row.Value)
		if err != nil {
			s.logger.Warn("ignoring malformed setting", "key", row.Key, "value", row.Value)
			continue
		}
		if !out.set(row.Key, v) {
			s.logger.Debug("ignoring unknown setting", "key", row.Key)
		}
	}
	return out, nil
}

// Update validates the merged result, persists it and drops the cache.
func (s *SettingsService) Update(ctx context.Context, change SettingsUpdate) (Settings, error) {
	current, err := s.load(ctx)
	if err != nil {
		return Settings{}, err
	}

	next := change.apply(current)
	if errs := next.validate(); len(errs) > 0 {
		return Settings{}, &SettingsError{Fields: errs}
	}

	now := s.clock.Now()
	rows := make([]models.Setting, 0, len(next.values()))
	for key, v := range next.values() {
		rows = append(rows, models.Setting{Key: key, Value: strconv.Itoa(v), Type: "integer", UpdatedAt: now})
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "type", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return Settings{}, fmt.Errorf("saving settings: %w", err)
	}

	s.cache.Purge()
	s.logger.Info("settings updated", "settings", next)
	return next, nil
}

func (s *SettingsService) current(ctx context.Context) Settings {
	settings, err := s.Get(ctx)
	if err != nil {
		s.logger.Error("falling back to default settings", "error", err)
		return s.defaults
	}
	return settings
}

func (s *SettingsService) MaxSeats(ctx context.Context) int {
	return s.current(ctx).MaxSeats
}

func (s *SettingsService) BillingPeriod(ctx context.Context) billing.BillingPeriod {
	return s.current(ctx).BillingPeriod()
}

func (s *SettingsService) InvitationExpiry(ctx context.Context) time.Duration {
	return time.Duration(s.current(ctx).InvitationExpiryDays) * 24 * time.Hour
}

func (s *SettingsService) FreeAnalysisLimit(ctx context.Context) int {
	return s.current(ctx).FreeAnalysisLimit
}
