package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/api/validation"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/internal/metrics"
	"github.com/hugh/dealdesk/internal/storage"
	"github.com/hugh/dealdesk/pkg/crypto"
	"github.com/hugh/dealdesk/pkg/util"
	"gorm.io/gorm"
)

// DefaultFreeLimit is the number of saved analyses a free account may keep.
const DefaultFreeLimit = 3

var (
	ErrAnalysisNotFound    = errors.New("analysis not found")
	ErrFreeLimitReached    = errors.New("free plan analysis limit reached")
	ErrFullAccessRequired  = errors.New("this feature requires an active trial or subscription")
	ErrInvalidInputs       = errors.New("invalid analysis inputs")
)

// FreeLimitError carries the limit that blocked a save.
type FreeLimitError struct {
	Limit int
}

func (e *FreeLimitError) Error() string {
	return fmt.Sprintf("free plan allows %d saved analyses", e.Limit)
}

func (e *FreeLimitError) Unwrap() error { return ErrFreeLimitReached }

// ValidationError lists invalid input fields by JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return ErrInvalidInputs.Error() }

func (e *ValidationError) Unwrap() error { return ErrInvalidInputs }

type Limits interface {
	FreeAnalysisLimit(ctx context.Context) int
}

type StaticLimit int

func (l StaticLimit) FreeAnalysisLimit(context.Context) int { return int(l) }

type Service struct {
	db        *gorm.DB
	billing   *billing.Service
	encryptor *crypto.Encryptor
	limits    Limits
	store     storage.Store
	urlExpiry time.Duration
	clock     util.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Options struct {
	Limits    Limits
	Store     storage.Store
	URLExpiry time.Duration
	Clock     util.Clock
	Metrics   *metrics.Metrics
}

func NewService(db *gorm.DB, billingService *billing.Service, encryptor *crypto.Encryptor, logger *slog.Logger, opts Options) *Service {
	if opts.Limits == nil {
		opts.Limits = StaticLimit(DefaultFreeLimit)
	}
	if opts.Clock == nil {
		opts.Clock = util.SystemClock()
	}
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = 15 * time.Minute
	}
	return &Service{
		db:        db,
		billing:   billingService,
		encryptor: encryptor,
		limits:    opts.Limits,
		store:     opts.Store,
		urlExpiry: opts.URLExpiry,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// ValidateInputs returns field errors for in; empty when valid.
func ValidateInputs(in Inputs) map[string]string {
	return validation.Struct(in)
}

// Evaluate validates and calculates without saving anything.
func (s *Service) Evaluate(in Inputs) (Results, error) {
	if errs := ValidateInputs(in); len(errs) > 0 {
		return Results{}, &ValidationError{Fields: errs}
	}
	return Calculate(in), nil
}

type SaveInput struct {
	Name            string
	PropertyAddress string
	Inputs          Inputs
}

// Saved is a stored analysis with its decrypted inputs and fresh results.
type Saved struct {
	models.Analysis
	Inputs  Inputs  `json:"inputs"`
	Results Results `json:"results"`
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, input SaveInput) (*Saved, error) {
	results, err := s.Evaluate(input.Inputs)
	if err != nil {
		return nil, err
	}

	sealed, err := s.encryptor.SealJSON(input.Inputs)
	if err != nil {
		return nil, fmt.Errorf("encrypting inputs: %w", err)
	}

	record := models.Analysis{
		UserID:          userID,
		Name:            input.Name,
		PropertyAddress: input.PropertyAddress,
		Units:           input.Inputs.Units,
		EncryptedInputs: sealed,
		NOI:             results.NOI,
		CapRate:         results.CapRatePct,
		CashOnCash:      results.CashOnCashPct,
	}

	limit := s.limits.FreeAnalysisLimit(ctx)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.billing.LoadNormalized(tx, userID)
		if err != nil {
			return err
		}

		if !billing.HasFullAccess(user, s.clock.Now()) {
			var count int64
			if err := tx.Model(&models.Analysis{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(limit) {
				return &FreeLimitError{Limit: limit}
			}
		}

		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AnalysisSaved()
	return &Saved{Analysis: record, Inputs: input.Inputs, Results: results}, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.Analysis, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Analysis{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.Analysis
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) load(ctx context.Context, userID, id uuid.UUID) (*models.Analysis, error) {
	var record models.Analysis
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnalysisNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Saved, error) {
	record, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	var in Inputs
	if err := s.encryptor.OpenJSON(record.EncryptedInputs, &in); err != nil {
		return nil, fmt.Errorf("decrypting inputs: %w", err)
	}

	return &Saved{Analysis: *record, Inputs: in, Results: Calculate(in)}, nil
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Analysis{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAnalysisNotFound
	}
	return nil
}
