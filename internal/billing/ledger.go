package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/database/models"
	"gorm.io/gorm"
)

// compareAndSwapSeats writes next only if the row still holds cur.
func compareAndSwapSeats(tx *gorm.DB, userID uuid.UUID, cur, next Seats) error {
	if !next.Valid() {
		return fmt.Errorf("refusing to write inconsistent seats %+v", next)
	}

	res := tx.Model(&models.User{}).
		Where("id = ? AND purchased_seats = ? AND used_seats = ? AND available_seats = ?",
			userID, cur.Purchased, cur.Used, cur.Available).
		Updates(map[string]interface{}{
			"purchased_seats": next.Purchased,
			"used_seats":      next.Used,
			"available_seats": next.Available,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

func maxSeatsFor(u *models.User, ceiling int) int {
	if u.IsAdmin {
		return Unlimited
	}
	return ceiling
}

// changeSeats applies fn under a compare-and-swap. The seat ceiling is read
// before the transaction opens, so fn never reaches the settings store while
// holding a connection.
func (s *Service) changeSeats(ctx context.Context, op string, userID uuid.UUID, requirePremium bool,
	fn func(u *models.User, cur Seats, ceiling int) (Seats, error)) (Seats, error) {
	ceiling := 0
	if requirePremium {
		ceiling = s.limits.MaxSeats(ctx)
	}

	var out Seats
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.LoadNormalized(tx, userID)
		if err != nil {
			return err
		}
		if requirePremium && !user.IsAdmin && !IsActivePremium(user, s.clock.Now()) {
			return ErrPremiumRequired
		}

		cur := SeatsOf(user)
		next, err := fn(user, cur, ceiling)
		if err != nil {
			return err
		}
		if err := compareAndSwapSeats(tx, user.ID, cur, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	s.metrics.Seat(op, err)
	if err != nil {
		return Seats{}, err
	}

	s.logger.Info("seats changed", "operation", op, "user_id", userID,
		"purchased", out.Purchased, "used", out.Used, "available", out.Available)
	return out, nil
}

func (s *Service) PurchaseSeats(ctx context.Context, userID uuid.UUID, n int) (Seats, error) {
	return s.changeSeats(ctx, "purchase", userID, true, func(u *models.User, cur Seats, ceiling int) (Seats, error) {
		return cur.Purchase(n, maxSeatsFor(u, ceiling))
	})
}

func (s *Service) AddSeats(ctx context.Context, userID uuid.UUID, n int) (Seats, error) {
	return s.changeSeats(ctx, "add", userID, true, func(u *models.User, cur Seats, ceiling int) (Seats, error) {
		return cur.Add(n, maxSeatsFor(u, ceiling))
	})
}

func (s *Service) RemoveSeats(ctx context.Context, userID uuid.UUID, n int) (Seats, error) {
	return s.changeSeats(ctx, "remove", userID, false, func(_ *models.User, cur Seats, _ int) (Seats, error) {
		return cur.Remove(n)
	})
}

type SeatInfo struct {
	Seats
	MaxSeats  int  `json:"max_seats"`
	Unlimited bool `json:"unlimited"`
}

func (s *Service) SeatInfo(ctx context.Context, userID uuid.UUID) (*SeatInfo, error) {
	user, err := loadUser(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	info := &SeatInfo{Seats: SeatsOf(user), Unlimited: user.IsAdmin}
	if !user.IsAdmin {
		info.MaxSeats = s.limits.MaxSeats(ctx)
	}
	return info, nil
}

// ReserveSeat takes one available seat from the owner inside tx. It reports
// false without touching the ledger for admin owners.
func (s *Service) ReserveSeat(tx *gorm.DB, ownerID uuid.UUID) (bool, error) {
	owner, err := loadUser(tx, ownerID)
	if err != nil {
		return false, err
	}
	if owner.IsAdmin {
		return false, nil
	}

	cur := SeatsOf(owner)
	next, err := cur.Reserve()
	if err == nil {
		err = compareAndSwapSeats(tx, owner.ID, cur, next)
	}
	s.metrics.Seat("reserve", err)
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReleaseSeat returns one seat to the owner's pool inside tx. Callers only
// release seats they recorded as reserved, so the owner's current admin flag
// does not matter here.
func (s *Service) ReleaseSeat(tx *gorm.DB, ownerID uuid.UUID) error {
	owner, err := loadUser(tx, ownerID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}

	cur := SeatsOf(owner)
	next, err := cur.Release()
	if errors.Is(err, ErrNoSeatsInUse) {
		s.logger.Warn("seat release with no seats in use", "owner_id", ownerID)
		s.metrics.Seat("release", err)
		return nil
	}
	if err == nil {
		err = compareAndSwapSeats(tx, owner.ID, cur, next)
	}
	s.metrics.Seat("release", err)
	return err
}
