package service

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// storeFileName is the backing file for the fingerprint store, a flat JSON
// object mapping fingerprint hex digests to RFC 3339 UTC timestamps.
const storeFileName = "processed_row_hashes.json"

func storePath(dataDir string) string {
	return filepath.Join(dataDir, storeFileName)
}

func ensureDataDir(dataDir string, logger *slog.Logger) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "data_dir", dataDir, "error", err)
	}
}

// loadEntries reads the store file if present. A missing file yields an
// empty map; a corrupt file or unparseable timestamps are logged and
// skipped rather than failing construction.
func loadEntries(path string, logger *slog.Logger) map[string]time.Time {
	entries := make(map[string]time.Time)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to read row hash store, starting fresh", "path", path, "error", err)
		}
		return entries
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("failed to parse row hash store, starting fresh", "path", path, "error", err)
		return entries
	}

	dropped := 0
	for hash, stamp := range raw {
		seen, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			dropped++
			continue
		}
		entries[hash] = seen.UTC()
	}
	if dropped > 0 {
		logger.Warn("dropped row hash entries with unparseable timestamps", "count", dropped)
	}

	logger.Debug("loaded row hashes from disk", "count", len(entries))
	return entries
}

// saveEntries writes the store atomically: marshal to a temp file in the
// same directory, then rename over the target.
func saveEntries(path string, entries map[string]time.Time) error {
	raw := make(map[string]string, len(entries))
	for hash, seen := range entries {
		raw[hash] = seen.UTC().Format(time.RFC3339Nano)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".row_hashes-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}

	return nil
}

// removeStore deletes the backing file, treating a missing file as success.
func removeStore(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
