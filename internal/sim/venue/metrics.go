package venue

// VenueMetrics is a thread-safe read-only view of key venue runtime signals.
// It is updated from the venue loop goroutine and read from HTTP handlers
// and tests.
type VenueMetrics struct {
	Tick uint64 `json:"tick"`

	Characters    int    `json:"characters"`
	Clients       int    `json:"clients"`
	Seated        int    `json:"seated"`
	Watching      int    `json:"watching"`
	Conversations int    `json:"conversations"`
	StageOccupied bool   `json:"stage_occupied"`
	PerformerID   string `json:"performer_id,omitempty"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox  int `json:"inbox"`
	Join   int `json:"join"`
	Leave  int `json:"leave"`
	Attach int `json:"attach"`
}

func (v *Venue) Metrics() VenueMetrics {
	if v == nil {
		return VenueMetrics{}
	}
	m, ok := v.metrics.Load().(VenueMetrics)
	if !ok {
		return VenueMetrics{}
	}
	return m
}
