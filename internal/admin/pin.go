package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"
)

var ErrInvalidPIN = errors.New("invalid admin PIN")

// PINVerifier guards destructive admin actions with a second factor.
type PINVerifier struct {
	pin   string
	delay time.Duration
}

func NewPINVerifier(pin string, delay time.Duration) *PINVerifier {
	return &PINVerifier{pin: pin, delay: delay}
}

// Verify waits the fixed delay on every attempt, then compares in constant
// time. An unconfigured PIN rejects every attempt.
func (v *PINVerifier) Verify(ctx context.Context, attempt string) error {
	if v.delay > 0 {
		timer := time.NewTimer(v.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if v.pin == "" || attempt == "" {
		return ErrInvalidPIN
	}
	if subtle.ConstantTimeCompare([]byte(v.pin), []byte(attempt)) != 1 {
		return ErrInvalidPIN
	}
	return nil
}
