package protocol

// OBS (server -> client): full venue state, broadcast every
// observer_every_ticks.
type ObsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	VenueID         string `json:"venue_id"`

	Stage         StageObs          `json:"stage"`
	Areas         []AreaObs         `json:"areas"`
	Characters    []CharacterObs    `json:"characters"`
	Conversations []ConversationObs `json:"conversations"`
	Events        []Event           `json:"events"`
}

type StageObs struct {
	Occupied    bool   `json:"occupied"`
	PerformerID string `json:"performer_id,omitempty"`
	SinceTick   uint64 `json:"since_tick,omitempty"`
}

type AreaObs struct {
	ID        string `json:"id"`
	Capacity  int    `json:"capacity"`
	Occupancy int    `json:"occupancy"`
}

type CharacterObs struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Archetype string   `json:"archetype"`
	Pos       [2]int   `json:"pos"`
	Station   [2]int   `json:"station"`
	Step      *StepObs `json:"step,omitempty"`
	PlanKinds []string `json:"plan_kinds,omitempty"`
	PlanIndex int      `json:"plan_index"`
	Origin    string   `json:"origin,omitempty"`
	Paused    bool     `json:"paused,omitempty"`
	Watching  bool     `json:"watching,omitempty"`
	Seat      *SeatObs `json:"seat,omitempty"`
}

type StepObs struct {
	Kind       string  `json:"kind"`
	Seconds    float64 `json:"seconds"`
	Indefinite bool    `json:"indefinite,omitempty"`
	Anim       string  `json:"anim,omitempty"`
	SeatHeight float64 `json:"seat_height,omitempty"`
	Arrived    bool    `json:"arrived,omitempty"`
	Target     []int   `json:"target,omitempty"`
}

type SeatObs struct {
	Area string `json:"area"`
	Pos  [2]int `json:"pos"`
}

type ConversationObs struct {
	A        string `json:"a"`
	B        string `json:"b"`
	EndsTick uint64 `json:"ends_tick"`
}

type Event map[string]interface{}

// FloorPlanObs is sent once in the CATALOG sequence: the walkability grid
// row-major, RLE-encoded, plus the landmark cells a renderer needs.
type FloorPlanObs struct {
	Width    int         `json:"width"`
	Height   int         `json:"height"`
	Encoding string      `json:"encoding"`
	Grid     string      `json:"grid"`
	Legend   []string    `json:"legend"`
	Stage    [][2]int    `json:"stage,omitempty"`
	Showcase [2]int      `json:"showcase"`
	Loop     [][2]int    `json:"loop,omitempty"`
	Seats    []SeatCell  `json:"seats,omitempty"`
	Stations [][2]int    `json:"stations,omitempty"`
	Courts   []CourtCell `json:"courts,omitempty"`
}

type SeatCell struct {
	Area string `json:"area"`
	Pos  [2]int `json:"pos"`
}

type CourtCell struct {
	Kind string `json:"kind"`
	Pos  [2]int `json:"pos"`
}
