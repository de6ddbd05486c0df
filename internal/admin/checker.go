package admin

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/pkg/cache"
	"github.com/hugh/dealdesk/pkg/util"
	"gorm.io/gorm"
)

// Checker answers whether a user currently holds the admin flag. Answers are
// cached briefly; call Invalidate after changing the flag.
type Checker struct {
	db    *gorm.DB
	cache *cache.TTL[uuid.UUID, bool]
}

func NewChecker(db *gorm.DB, ttl time.Duration, clock util.Clock) *Checker {
	return &Checker{
		db:    db,
		cache: cache.NewTTL[uuid.UUID, bool](ttl, clock),
	}
}

// IsAdmin reports false for unknown users.
func (c *Checker) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return c.cache.GetOrLoad(userID, func() (bool, error) {
		var user models.User
		err := c.db.WithContext(ctx).Select("id", "is_admin").First(&user, "id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return user.IsAdmin, nil
	})
}

func (c *Checker) Invalidate(userID uuid.UUID) {
	c.cache.Delete(userID)
}
