// Package persistence saves and loads a settings store to the flat
// text file format fluid-settingsd keeps on disk between restarts.
package persistence

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fluidsettings/fluid-settingsd/internal/metrics"
	"github.com/fluidsettings/fluid-settingsd/internal/settings"
)

const fileHeader = "# fluid-settings persisted state — generated file, do not edit by hand\n"

// Save rewrites path with every record currently held by store, one
// line per record: "<name>::<priority> = <timestamp-ns>|<escaped-
// value>". Save always does a full rewrite rather than an incremental
// update; the existing file, if any, is preserved alongside as
// path+".bak" before the new file replaces it, and the replace itself
// is an atomic rename.
func Save(store *settings.Store, path string) (err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.SavesTotal.WithLabelValues(outcome).Inc()
	}()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("persistence: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString(fileHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("persistence: write header: %w", err)
	}

	for _, name := range store.AllNames() {
		for _, rec := range store.Records(name) {
			line := encodeLine(name, rec)
			if _, err := w.WriteString(line); err != nil {
				tmp.Close()
				return fmt.Errorf("persistence: write record: %w", err)
			}
		}
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("persistence: flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("persistence: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persistence: close temp file: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".bak"); err != nil {
			return fmt.Errorf("persistence: back up previous file: %w", err)
		}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("persistence: rename into place: %w", err)
	}
	return nil
}

// Load reads path and applies every record it describes to store with
// settings.OriginLocal. A missing file is not an error: it is the
// normal state of a daemon that has never saved anything yet.
func Load(store *settings.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("persistence: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, rec, err := decodeLine(line)
		if err != nil {
			return fmt.Errorf("persistence: %s:%d: %w", path, lineNo, err)
		}
		store.ApplyRecord(name, rec, settings.OriginLocal)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("persistence: read %s: %w", path, err)
	}
	return nil
}

func encodeLine(name string, rec settings.Record) string {
	return fmt.Sprintf("%s::%d = %d|%s\n", name, rec.Priority, rec.Timestamp.UnixNano(), settings.EscapeValue(rec.Text))
}

func decodeLine(line string) (name string, rec settings.Record, err error) {
	keyPart, valuePart, ok := strings.Cut(line, "=")
	if !ok {
		return "", settings.Record{}, fmt.Errorf("missing '=' in %q", line)
	}
	keyPart = strings.TrimSpace(keyPart)
	valuePart = strings.TrimSpace(valuePart)

	name, prioStr, ok := cutLast(keyPart, "::")
	if !ok {
		return "", settings.Record{}, fmt.Errorf("missing '::' in key %q", keyPart)
	}
	priority, err := strconv.Atoi(prioStr)
	if err != nil {
		return "", settings.Record{}, fmt.Errorf("bad priority in key %q: %w", keyPart, err)
	}

	tsStr, escapedValue, ok := strings.Cut(valuePart, "|")
	if !ok {
		return "", settings.Record{}, fmt.Errorf("missing '|' in value %q", valuePart)
	}
	nsec, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return "", settings.Record{}, fmt.Errorf("bad timestamp in value %q: %w", valuePart, err)
	}

	return name, settings.Record{
		Priority:  settings.Priority(priority),
		Timestamp: time.Unix(0, nsec).UTC(),
		Text:      settings.UnescapeValue(escapedValue),
	}, nil
}

// cutLast splits s on the last occurrence of sep, matching the
// "name::priority" key format where name may itself contain "::".
func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
