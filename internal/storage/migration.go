package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// MigrateStateFile checks the version of a state file and runs migrations if needed.
//
// Version 0 files hold a bare AlertState record at the top level (the layout
// written by earlier single-key deployments). They are wrapped into the
// entries map under defaultKey.
func MigrateStateFile(filePath, defaultKey string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // nothing to migrate
		}
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Left in place; reads treat it as absent state and the next write replaces it.
		slog.Warn("state file is not a JSON object, skipping migration", "path", filePath, "error", err)
		return nil
	}

	version := 0
	if v, ok := raw["version"]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			version = 0
		}
	}
	if _, hasEntries := raw["entries"]; hasEntries {
		if version != CurrentFileVersion {
			slog.Warn("unknown state file version, reading as current", "path", filePath, "version", version)
		}
		return nil
	}

	// A top-level record without entries is the legacy layout, whatever its
	// own version field says.
	slog.Info("migrating state file", "path", filePath, "from_version", 0, "to_version", CurrentFileVersion)
	if err := migrateStateV0toV1(filePath, defaultKey, data); err != nil {
		return err
	}
	slog.Info("state file migration complete", "path", filePath)
	return nil
}

func migrateStateV0toV1(filePath, defaultKey string, data []byte) error {
	fd := fileData{
		Version:      CurrentFileVersion,
		LastDumpTime: time.Now().Unix(),
		Entries:      map[string]json.RawMessage{defaultKey: json.RawMessage(data)},
	}
	if err := atomicWriteJSON(filePath, fd); err != nil {
		return fmt.Errorf("rewrite state file: %w", err)
	}
	return nil
}
