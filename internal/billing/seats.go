package billing

import (
	"math"

	"github.com/hugh/dealdesk/internal/database/models"
)

// Unlimited disables the seat ceiling; used for admin accounts.
const Unlimited = math.MaxInt

// Seats is a snapshot of a workspace seat pool. All methods return a new
// value and leave the receiver untouched on error.
type Seats struct {
	Purchased int `json:"purchased"`
	Used      int `json:"used"`
	Available int `json:"available"`
}

func SeatsOf(u *models.User) Seats {
	return Seats{
		Purchased: u.PurchasedSeats,
		Used:      u.UsedSeats,
		Available: u.AvailableSeats,
	}
}

func (s Seats) apply(u *models.User) {
	u.PurchasedSeats = s.Purchased
	u.UsedSeats = s.Used
	u.AvailableSeats = s.Available
}

func (s Seats) Valid() bool {
	return s.Purchased >= 0 && s.Used >= 0 && s.Available >= 0 &&
		s.Purchased == s.Used+s.Available
}

// Purchase buys the initial block of seats.
func (s Seats) Purchase(n, max int) (Seats, error) {
	if s.Purchased > 0 {
		return s, ErrSeatsAlreadyPurchased
	}
	if n < 1 {
		return s, ErrInvalidSeatCount
	}
	if n > max {
		return s, &SeatLimitError{Current: s.Purchased, Requested: n, Max: max}
	}
	return Seats{Purchased: n, Used: s.Used, Available: n - s.Used}, nil
}

func (s Seats) Add(n, max int) (Seats, error) {
	if n < 1 {
		return s, ErrInvalidSeatCount
	}
	if n > max-s.Purchased {
		return s, &SeatLimitError{Current: s.Purchased, Requested: n, Max: max}
	}
	return Seats{Purchased: s.Purchased + n, Used: s.Used, Available: s.Available + n}, nil
}

// Remove gives back unused seats. Seats held by members or open invitations
// cannot be removed.
func (s Seats) Remove(n int) (Seats, error) {
	if n < 1 {
		return s, ErrInvalidSeatCount
	}
	if n > s.Available {
		return s, &InsufficientSeatsError{Requested: n, Available: s.Available}
	}
	return Seats{Purchased: s.Purchased - n, Used: s.Used, Available: s.Available - n}, nil
}

func (s Seats) Reserve() (Seats, error) {
	if s.Available < 1 {
		return s, ErrNoAvailableSeats
	}
	return Seats{Purchased: s.Purchased, Used: s.Used + 1, Available: s.Available - 1}, nil
}

func (s Seats) Release() (Seats, error) {
	if s.Used < 1 {
		return s, ErrNoSeatsInUse
	}
	return Seats{Purchased: s.Purchased, Used: s.Used - 1, Available: s.Available + 1}, nil
}
