package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/pkg/util"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountPendingClose = errors.New("account is pending deletion")
)

type Service struct {
	db     *gorm.DB
	jwt    *JWTService
	clock  util.Clock
	logger *slog.Logger
	hooks  []SignupHook
}

func NewService(db *gorm.DB, jwt *JWTService, clock util.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = util.SystemClock()
	}
	return &Service{db: db, jwt: jwt, clock: clock, logger: logger}
}

// OnSignup registers a hook run after each successful registration. Hook
// failures are logged and do not fail the registration.
func (s *Service) OnSignup(hook SignupHook) {
	s.hooks = append(s.hooks, hook)
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the account and starts its one-time trial.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	email := normalizeEmail(input.Email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := models.User{
		Base:          models.Base{CreatedAt: now},
		Email:         email,
		PasswordHash:  hash,
		Name:          strings.TrimSpace(input.Name),
		AccountStatus: models.AccountActive,
	}
	billing.GrantTrial(&user, now)

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}

	for _, hook := range s.hooks {
		if err := hook(ctx, &user); err != nil {
			s.logger.Error("signup hook failed", "user_id", user.ID, "error", err)
		}
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token: token,
		User:  &user,
	}, nil
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("email = ?", normalizeEmail(input.Email)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if user.AccountStatus == models.AccountPendingDeletion {
		return nil, ErrAccountPendingClose
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token: token,
		User:  &user,
	}, nil
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// RequestDeletion marks the account for deletion. An admin purges it later.
func (s *Service) RequestDeletion(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.AccountStatus == models.AccountPendingDeletion {
		return user, nil
	}

	now := s.clock.Now()
	user.AccountStatus = models.AccountPendingDeletion
	user.DeletionRequestedAt = &now
	if err := s.db.WithContext(ctx).Model(user).
		Select("account_status", "deletion_requested_at").
		Updates(user).Error; err != nil {
		return nil, err
	}

	s.logger.Info("account deletion requested", "user_id", id)
	return user, nil
}
