package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"greenroom.ai/internal/persistence/indexdb"
	"greenroom.ai/internal/persistence/snapshot"
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/tuning"
	"greenroom.ai/internal/sim/venue"
)

type runtimeIndex interface {
	venue.TickLogger
	venue.EventLogger
	Close() error
	UpsertCatalogs(configDir, floorPlanPath string, cat *catalog.Catalog, floorPlanDigest string, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordDay(day int, endTick uint64, archivedSnapshotPath string, seed int64)
}

func openRuntimeIndex(venueDir, venueID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("GR_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(venueDir, "index", "venue.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "mirror":
		endpoint := strings.TrimSpace(os.Getenv("GR_INDEX_MIRROR_URL"))
		token := strings.TrimSpace(os.Getenv("GR_INDEX_MIRROR_TOKEN"))
		if endpoint == "" {
			return nil, fmt.Errorf("GR_INDEX_BACKEND=mirror but GR_INDEX_MIRROR_URL is empty")
		}
		flushMS := envInt("GR_INDEX_MIRROR_FLUSH_MS", 500)
		batchSize := envInt("GR_INDEX_MIRROR_BATCH_SIZE", 128)
		idx, err := indexdb.OpenMirror(indexdb.MirrorConfig{
			Endpoint:      endpoint,
			Token:         token,
			VenueID:       venueID,
			BatchSize:     batchSize,
			FlushInterval: time.Duration(flushMS) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported GR_INDEX_BACKEND: %s", backend)
	}
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}
