package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int    `json:"version"`
	VenueID string `json:"venue_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 captures the durable venue state: who is in the cast, where
// they stand and how far their RNG stream has advanced. Plans are never
// persisted; a resumed venue regenerates them from the restored streams,
// so seats, stage claims and conversations rebuild on the first ticks after
// a resume.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed         int64 `json:"seed"`
	TickRate     int   `json:"tick_rate_hz"`
	DayTicks     int   `json:"day_ticks"`
	PlanStepsMin int   `json:"plan_steps_min"`
	PlanStepsMax int   `json:"plan_steps_max"`

	// Operational parameters (captured for deterministic replay/resume).
	SnapshotEveryTicks int `json:"snapshot_every_ticks,omitempty"`
	ObsEveryTicks      int `json:"obs_every_ticks,omitempty"`

	// Catalog/floor-plan digests pin the content the snapshot was taken
	// under; import refuses to resume against different content.
	KindsDigest      string `json:"kinds_digest,omitempty"`
	AreasDigest      string `json:"areas_digest,omitempty"`
	ArchetypesDigest string `json:"archetypes_digest,omitempty"`
	FloorPlanDigest  string `json:"floor_plan_digest,omitempty"`

	Characters []CharacterV1 `json:"characters"`

	Counters CountersV1 `json:"counters"`
}

type CharacterV1 struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Archetype string `json:"archetype"`
	Ordinal   uint64 `json:"ordinal"`
	Station   [2]int `json:"station"`
	Pos       [2]int `json:"pos"`
	RandState uint64 `json:"rand_state"`
}

type CountersV1 struct {
	NextCharacter uint64 `json:"next_character"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Read header line (ignore it for now, gob also contains header).
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader peeks at the JSON header line without decoding the gob body.
// Useful for listing snapshot directories cheaply.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header decode: %w", err)
	}
	return h, nil
}
