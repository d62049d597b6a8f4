package status

import (
	"errors"
	"fmt"
	"strings"
)

// Kind groups errors by how callers should react to them.
type Kind int

const (
	KindTransient Kind = iota
	KindValidation
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "transient"
	}
}

// Error is a domain error with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	// ledger
	ErrInvalidAmount             = newError(KindValidation, "InvalidAmount", "ledger: amount must be greater than zero")
	ErrInsufficientFunds         = newError(KindConflict, "InsufficientFunds", "ledger: insufficient funds")
	ErrWalletNotFound            = newError(KindNotFound, "WalletNotFound", "ledger: wallet not found")
	ErrInsufficientPlatformFunds = newError(KindConflict, "InsufficientPlatformFunds", "reward: platform wallet cannot cover redemption")

	// rewards
	ErrUserNotFound    = newError(KindNotFound, "UserNotFound", "user: user not found")
	ErrRewardNotFound  = newError(KindNotFound, "RewardNotFound", "reward: reward not found")
	ErrRewardExpired   = newError(KindValidation, "RewardExpired", "reward: reward has expired")
	ErrNothingToRedeem = newError(KindConflict, "NothingToRedeem", "reward: no valid rewards to redeem")

	// bookings and events
	ErrEventNotFound        = newError(KindNotFound, "EventNotFound", "event: event not found")
	ErrBookingNotFound      = newError(KindNotFound, "BookingNotFound", "booking: booking not found")
	ErrInsufficientCapacity = newError(KindConflict, "InsufficientCapacity", "booking: not enough seats left")
	ErrInvalidTransition    = newError(KindValidation, "InvalidTransition", "booking: status transition not allowed")
	ErrInvalidSeatCount     = newError(KindValidation, "InvalidSeatCount", "booking: number of people must be positive")
	ErrInvalidSchedule      = newError(KindValidation, "InvalidSchedule", "event: invalid event time range")

	// feedback
	ErrFeedbackNotFound = newError(KindNotFound, "FeedbackNotFound", "feedback: feedback not found")
	ErrFeedbackExists   = newError(KindConflict, "FeedbackExists", "feedback: feedback already exists for booking")
	ErrInvalidRating    = newError(KindValidation, "InvalidRating", "feedback: rating must be between 1 and 5")
	ErrTokenNotFound    = newError(KindNotFound, "TokenNotFound", "token: token not found")
	ErrTokenUsed        = newError(KindConflict, "TokenUsed", "token: token already used")
	ErrTokenExpired     = newError(KindValidation, "TokenExpired", "token: token expired")
)

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks an infrastructure failure. The atomic unit it happened in
// was aborted and the caller may retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	var t *transientError
	if errors.As(err, &t) {
		return err
	}
	return &transientError{err: err}
}

// KindOf classifies err. Errors without a domain code are treated as transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// CodeOf returns the domain code of err, or "Transient" for infrastructure errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "Transient"
}

// CascadeError collects the failed steps of a best-effort cascade.
type CascadeError struct {
	Subject string
	Steps   []string
	Err     error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("cascade %s: %d step(s) failed [%s]: %v", e.Subject, len(e.Steps), strings.Join(e.Steps, ", "), e.Err)
}

func (e *CascadeError) Unwrap() error { return e.Err }

// Cascade accumulates step failures for subject and reports them as one error.
type Cascade struct {
	subject string
	steps   []string
	errs    []error
}

func NewCascade(subject string) *Cascade {
	return &Cascade{subject: subject}
}

func (c *Cascade) Fail(step string, err error) {
	if err == nil {
		return
	}
	c.steps = append(c.steps, step)
	c.errs = append(c.errs, fmt.Errorf("%s: %w", step, err))
}

// Err returns nil when every step succeeded.
func (c *Cascade) Err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return &CascadeError{Subject: c.subject, Steps: c.steps, Err: errors.Join(c.errs...)}
}
