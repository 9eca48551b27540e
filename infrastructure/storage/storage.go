// Package storage owns the four JSON state files of the service: routing
// configuration, statistics, message history and the media blob index. Each
// store guards its state with its own lock and never holds it across a call
// into another component.
package storage

import (
	"encoding/json"
	"os"
	"time"
)

// writeJSONAtomic persists v by writing a sibling temp file and renaming it
// over the target, so a crash mid-write never leaves a torn file behind.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
