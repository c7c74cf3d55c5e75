package domain

import "time"

type TargetID string

// Target is a registered endpoint. Rows are owned by the registration service;
// the dispatch pipeline only reads them.
type Target struct {
	ID        TargetID  `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type TickStatus string

const (
	StatusUp   TickStatus = "up"
	StatusDown TickStatus = "down"
	// StatusUnknown is only ever computed for display; workers never write it.
	StatusUnknown TickStatus = "unknown"
)

// Tick is one immutable observation of a target from one region.
type Tick struct {
	TargetID       TargetID   `json:"target_id"`
	RegionID       string     `json:"region_id"`
	Status         TickStatus `json:"status"`
	ResponseTimeMS int64      `json:"response_time_ms"`
	ObservedAt     time.Time  `json:"observed_at"`
	Reason         string     `json:"reason,omitempty"`
}

// StatusAt reports what a display layer should show for t at now.
// A missing tick, or one older than staleAfter, is unknown rather than down.
func StatusAt(t *Tick, now time.Time, staleAfter time.Duration) TickStatus {
	if t == nil {
		return StatusUnknown
	}
	if staleAfter > 0 && now.Sub(t.ObservedAt) > staleAfter {
		return StatusUnknown
	}
	switch t.Status {
	case StatusUp, StatusDown:
		return t.Status
	default:
		return StatusUnknown
	}
}
