package billing

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound = errors.New("user not found")

	ErrInvalidSeatCount      = errors.New("seat count must be at least 1")
	ErrSeatsAlreadyPurchased = errors.New("seats already purchased, use add instead")
	ErrSeatLimitExceeded     = errors.New("seat limit exceeded")
	ErrSeatsInUse            = errors.New("seats are in use")
	ErrNoAvailableSeats      = errors.New("no available seats")
	ErrNoSeatsInUse          = errors.New("no seats in use")
	ErrPremiumRequired       = errors.New("an active premium subscription is required")
	ErrConcurrentUpdate      = errors.New("seat counts changed concurrently, retry")

	ErrTrialAlreadyUsed  = errors.New("trial already used")
	ErrTrialWindowClosed = errors.New("trial window has closed")
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrNotSubscribed     = errors.New("no active premium subscription")
	ErrAlreadyCancelled  = errors.New("subscription already cancelled")
)

// SeatLimitError is returned when a purchase or addition would pass the seat ceiling.
type SeatLimitError struct {
	Current   int
	Requested int
	Max       int
}

func (e *SeatLimitError) Error() string {
	return fmt.Sprintf("seat limit exceeded: %d purchased, %d requested, maximum %d", e.Current, e.Requested, e.Max)
}

func (e *SeatLimitError) Unwrap() error {
	return ErrSeatLimitExceeded
}

// InsufficientSeatsError is returned when removing more seats than are available.
type InsufficientSeatsError struct {
	Requested int
	Available int
}

func (e *InsufficientSeatsError) Error() string {
	return fmt.Sprintf("cannot remove %d seats: only %d available", e.Requested, e.Available)
}

func (e *InsufficientSeatsError) Unwrap() error {
	return ErrSeatsInUse
}
