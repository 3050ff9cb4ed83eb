package periods

import "time"

// Period represents a financial period window.
type Period struct {
	ID        int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Locked    bool
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AcceptsWrites reports whether postings may still be written to the period.
func (p Period) AcceptsWrites() bool {
	return p.Active && !p.Locked
}
