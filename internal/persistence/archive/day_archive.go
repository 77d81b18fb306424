package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"greenroom.ai/internal/persistence/snapshot"
)

type DayArchiveMeta struct {
	Day       int    `json:"day"`
	EndTick   uint64 `json:"end_tick"`
	Seed      int64  `json:"seed"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
	DayTicks  int    `json:"day_ticks"`
}

// ArchiveDaySnapshot copies a day-end snapshot into `venueDir/archives/day_<NNN>/`.
// It returns (day, archivedPath, archived=true) when the snapshot represents
// the last tick of a venue day.
func ArchiveDaySnapshot(venueDir, snapshotPath string, snap snapshot.SnapshotV1) (day int, archivedPath string, archived bool, err error) {
	if snap.DayTicks <= 0 {
		return 0, "", false, nil
	}
	dayLen := uint64(snap.DayTicks)
	// Snapshots represent the last executed tick. Day boundaries happen at
	// tick multiples, so the day-end snapshot is at tick = dayLen*k - 1.
	if (snap.Header.Tick+1)%dayLen != 0 {
		return 0, "", false, nil
	}
	day = int((snap.Header.Tick + 1) / dayLen)
	if day <= 0 {
		return 0, "", false, nil
	}

	archiveDir := filepath.Join(venueDir, "archives", fmt.Sprintf("day_%03d", day))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := DayArchiveMeta{
		Day:       day,
		EndTick:   snap.Header.Tick,
		Seed:      snap.Seed,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		DayTicks:  snap.DayTicks,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return day, dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
