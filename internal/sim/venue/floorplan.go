package venue

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
	simenc "greenroom.ai/internal/sim/encoding"
)

// Cell is a walkable grid coordinate. X grows right, Y grows down.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// FloorPlan is the static layout of the venue: which cells are walls, where
// the work stations are, the seat cells of each seated area, the stage and
// its audience row, the showcase wall, the walking loop waypoints and the
// outdoor courts. It never changes after load; all dynamic occupancy lives
// on the Venue.
type FloorPlan struct {
	Width  int
	Height int

	Stations []Cell
	Seats    map[catalog.AreaID][]Cell
	Stage    []Cell
	Audience []Cell
	Showcase Cell
	Loop     []Cell
	Courts   map[catalog.Kind][]Cell

	// Digest is sha256 of the source bytes (file) or of the canonical wire
	// form (built-in default).
	Digest string

	blocked map[Cell]bool
}

// floorPlanFile is the wire format of configs/floorplan.json. Walls are
// inclusive rectangles [x1,y1,x2,y2]; everything else is explicit cells.
type floorPlanFile struct {
	Width    int                 `json:"width"`
	Height   int                 `json:"height"`
	Walls    [][4]int            `json:"walls"`
	Stations [][2]int            `json:"stations"`
	Areas    map[string][][2]int `json:"areas"`
	Stage    [][2]int            `json:"stage"`
	Audience [][2]int            `json:"audience"`
	Showcase [2]int              `json:"showcase"`
	Loop     [][2]int            `json:"loop"`
	Courts   map[string][][2]int `json:"courts"`
}

// LoadFloorPlan reads a floor plan JSON file and validates its geometry.
func LoadFloorPlan(path string) (*FloorPlan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("floorplan: %w", err)
	}
	var f floorPlanFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("floorplan: %w", err)
	}
	fp, err := newFloorPlan(f)
	if err != nil {
		return nil, fmt.Errorf("floorplan: %w", err)
	}
	fp.Digest = sha256Hex(raw)
	return fp, nil
}

// DefaultFloorPlan returns the built-in studio lounge layout. It matches
// configs/floorplan.json and exists so tests and bare servers need no file.
func DefaultFloorPlan() *FloorPlan {
	f := defaultFloorPlanFile()
	fp, err := newFloorPlan(f)
	if err != nil {
		panic(fmt.Sprintf("default floor plan invalid: %v", err))
	}
	b, err := json.Marshal(f)
	if err != nil {
		panic(fmt.Sprintf("default floor plan marshal: %v", err))
	}
	fp.Digest = sha256Hex(b)
	return fp
}

func defaultFloorPlanFile() floorPlanFile {
	return floorPlanFile{
		Width:  44,
		Height: 30,
		Walls: [][4]int{
			{0, 0, 43, 0},
			{0, 29, 43, 29},
			{0, 0, 0, 29},
			{43, 0, 43, 29},
		},
		Stations: [][2]int{
			{3, 4}, {3, 7}, {3, 10}, {3, 13},
			{5, 4}, {5, 7}, {5, 10}, {5, 13},
		},
		Areas: map[string][][2]int{
			"KITCHEN":    {{36, 3}, {37, 3}, {38, 3}, {39, 3}, {40, 3}},
			"COUCH":      {{20, 14}, {21, 14}},
			"BREAK_ROOM": {{9, 3}, {10, 3}, {9, 5}, {10, 5}},
			"POKER":      {{33, 14}, {34, 14}, {33, 15}, {34, 15}},
			"PATIO":      {{39, 22}, {40, 22}, {41, 22}, {39, 23}, {40, 23}, {41, 23}},
		},
		Stage:    [][2]int{{19, 26}, {20, 26}, {21, 26}, {22, 26}, {23, 26}, {24, 26}},
		Audience: [][2]int{{17, 22}, {19, 22}, {21, 22}, {23, 22}, {25, 22}, {17, 23}, {19, 23}, {21, 23}, {23, 23}, {25, 23}},
		Showcase: [2]int{2, 20},
		Loop:     [][2]int{{10, 8}, {32, 8}, {32, 19}, {10, 19}},
		Courts: map[string][][2]int{
			"PLAY_BOCCE":    {{36, 27}, {37, 27}},
			"PLAY_CORNHOLE": {{40, 27}, {41, 27}},
		},
	}
}

func newFloorPlan(f floorPlanFile) (*FloorPlan, error) {
	if f.Width < 8 || f.Height < 8 {
		return nil, fmt.Errorf("grid too small: %dx%d", f.Width, f.Height)
	}

	fp := &FloorPlan{
		Width:   f.Width,
		Height:  f.Height,
		Seats:   map[catalog.AreaID][]Cell{},
		Courts:  map[catalog.Kind][]Cell{},
		blocked: map[Cell]bool{},
	}

	for _, w := range f.Walls {
		x1, y1, x2, y2 := w[0], w[1], w[2], w[3]
		if x1 > x2 || y1 > y2 {
			return nil, fmt.Errorf("wall rect inverted: %v", w)
		}
		for y := y1; y <= y2; y++ {
			for x := x1; x <= x2; x++ {
				fp.blocked[Cell{X: x, Y: y}] = true
			}
		}
	}

	cells := func(what string, in [][2]int) ([]Cell, error) {
		out := make([]Cell, 0, len(in))
		for _, p := range in {
			c := Cell{X: p[0], Y: p[1]}
			if !fp.InBounds(c) {
				return nil, fmt.Errorf("%s cell out of bounds: %v", what, c)
			}
			if fp.blocked[c] {
				return nil, fmt.Errorf("%s cell inside a wall: %v", what, c)
			}
			out = append(out, c)
		}
		return out, nil
	}

	var err error
	if fp.Stations, err = cells("station", f.Stations); err != nil {
		return nil, err
	}
	if len(fp.Stations) == 0 {
		return nil, fmt.Errorf("no stations")
	}
	for id, pts := range f.Areas {
		area := catalog.AreaID(id)
		if !area.Valid() {
			return nil, fmt.Errorf("unknown area: %s", id)
		}
		seats, err := cells("seat", pts)
		if err != nil {
			return nil, err
		}
		if len(seats) == 0 {
			return nil, fmt.Errorf("area %s has no seats", id)
		}
		fp.Seats[area] = seats
	}
	for _, area := range catalog.AllAreas {
		if len(fp.Seats[area]) == 0 {
			return nil, fmt.Errorf("missing area: %s", area)
		}
	}
	if fp.Stage, err = cells("stage", f.Stage); err != nil {
		return nil, err
	}
	if len(fp.Stage) == 0 {
		return nil, fmt.Errorf("no stage cells")
	}
	if fp.Audience, err = cells("audience", f.Audience); err != nil {
		return nil, err
	}
	if len(fp.Audience) == 0 {
		return nil, fmt.Errorf("no audience cells")
	}
	show, err := cells("showcase", [][2]int{f.Showcase})
	if err != nil {
		return nil, err
	}
	fp.Showcase = show[0]
	if fp.Loop, err = cells("loop", f.Loop); err != nil {
		return nil, err
	}
	if len(fp.Loop) < 2 {
		return nil, fmt.Errorf("loop needs at least 2 waypoints, got %d", len(fp.Loop))
	}
	for id, pts := range f.Courts {
		kind := catalog.Kind(id)
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown court kind: %s", id)
		}
		court, err := cells("court", pts)
		if err != nil {
			return nil, err
		}
		if len(court) == 0 {
			return nil, fmt.Errorf("court %s has no cells", id)
		}
		fp.Courts[kind] = court
	}
	for _, kind := range []catalog.Kind{catalog.KindPlayBocce, catalog.KindPlayCornhole} {
		if len(fp.Courts[kind]) == 0 {
			return nil, fmt.Errorf("missing court for %s", kind)
		}
	}

	return fp, nil
}

func (fp *FloorPlan) InBounds(c Cell) bool {
	return c.X >= 0 && c.X < fp.Width && c.Y >= 0 && c.Y < fp.Height
}

func (fp *FloorPlan) Walkable(c Cell) bool {
	return fp.InBounds(c) && !fp.blocked[c]
}

// StageCenter is where a performer stands.
func (fp *FloorPlan) StageCenter() Cell {
	return fp.Stage[(len(fp.Stage)-1)/2]
}

// AudienceCell spreads watchers over the audience row by join ordinal.
func (fp *FloorPlan) AudienceCell(ordinal uint64) Cell {
	return fp.Audience[int(ordinal)%len(fp.Audience)]
}

// CourtCell picks a standing spot on the court for the given game kind.
func (fp *FloorPlan) CourtCell(kind catalog.Kind, ordinal uint64) (Cell, bool) {
	court := fp.Courts[kind]
	if len(court) == 0 {
		return Cell{}, false
	}
	return court[int(ordinal)%len(court)], true
}

// Station assigns a desk round-robin by join ordinal.
func (fp *FloorPlan) Station(ordinal uint64) Cell {
	if ordinal == 0 {
		return fp.Stations[0]
	}
	return fp.Stations[int(ordinal-1)%len(fp.Stations)]
}

// Tile ids used by the observer grid. Index matches gridLegend.
const (
	tileFloor uint16 = iota
	tileWall
	tileStation
	tileSeat
	tileStage
	tileAudience
	tileShowcase
	tileCourt
)

func gridLegend() []string {
	return []string{"FLOOR", "WALL", "STATION", "SEAT", "STAGE", "AUDIENCE", "SHOWCASE", "COURT"}
}

// Obs renders the static plan for the WELCOME catalog burst. The grid is
// row-major RLE over the tile legend; dynamic occupancy is not part of it.
func (fp *FloorPlan) Obs() protocol.FloorPlanObs {
	grid := make([]uint16, fp.Width*fp.Height)
	put := func(c Cell, t uint16) {
		grid[c.Y*fp.Width+c.X] = t
	}
	for c := range fp.blocked {
		if fp.InBounds(c) {
			put(c, tileWall)
		}
	}
	for _, c := range fp.Stations {
		put(c, tileStation)
	}

	seats := make([]protocol.SeatCell, 0, 16)
	areas := make([]catalog.AreaID, 0, len(fp.Seats))
	for area := range fp.Seats {
		areas = append(areas, area)
	}
	sort.Slice(areas, func(i, j int) bool { return areas[i] < areas[j] })
	for _, area := range areas {
		for _, c := range fp.Seats[area] {
			put(c, tileSeat)
			seats = append(seats, protocol.SeatCell{Area: string(area), Pos: [2]int{c.X, c.Y}})
		}
	}

	for _, c := range fp.Stage {
		put(c, tileStage)
	}
	for _, c := range fp.Audience {
		put(c, tileAudience)
	}
	put(fp.Showcase, tileShowcase)

	courts := make([]protocol.CourtCell, 0, 4)
	kinds := make([]catalog.Kind, 0, len(fp.Courts))
	for kind := range fp.Courts {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, kind := range kinds {
		for _, c := range fp.Courts[kind] {
			put(c, tileCourt)
			courts = append(courts, protocol.CourtCell{Kind: string(kind), Pos: [2]int{c.X, c.Y}})
		}
	}

	stage := make([][2]int, 0, len(fp.Stage))
	for _, c := range fp.Stage {
		stage = append(stage, [2]int{c.X, c.Y})
	}
	loop := make([][2]int, 0, len(fp.Loop))
	for _, c := range fp.Loop {
		loop = append(loop, [2]int{c.X, c.Y})
	}
	stations := make([][2]int, 0, len(fp.Stations))
	for _, c := range fp.Stations {
		stations = append(stations, [2]int{c.X, c.Y})
	}

	return protocol.FloorPlanObs{
		Width:    fp.Width,
		Height:   fp.Height,
		Encoding: "rle",
		Grid:     simenc.EncodeRLE(grid),
		Legend:   gridLegend(),
		Stage:    stage,
		Showcase: [2]int{fp.Showcase.X, fp.Showcase.Y},
		Loop:     loop,
		Seats:    seats,
		Stations: stations,
		Courts:   courts,
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
