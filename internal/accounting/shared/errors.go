package shared

import "errors"

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: posting lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: posting requires at least two lines")
	// ErrNegativeTotal indicates a posting built from a negative gross total.
	ErrNegativeTotal = errors.New("accounting: gross total cannot be negative")
	// ErrPostingNotFound indicates missing posting.
	ErrPostingNotFound = errors.New("accounting: posting not found")
	// ErrInvalidLine indicates a line with no ledger, a negative amount, or both sides set.
	ErrInvalidLine = errors.New("accounting: invalid posting line")
)
