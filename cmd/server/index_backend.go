package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelfall.ai/internal/persistence/indexdb"
	"voxelfall.ai/internal/sim/course"
	"voxelfall.ai/internal/sim/tuning"
	"voxelfall.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.RaceLogger
	Close() error
	Stats() indexdb.Stats
	UpsertConfigs(tune tuning.Tuning, crs course.Config) error
}

func indexPath(worldDir string) string {
	return filepath.Join(worldDir, "index", "races.sqlite")
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VF_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(indexPath(worldDir))
	default:
		return nil, fmt.Errorf("unsupported VF_INDEX_BACKEND: %s", backend)
	}
}
