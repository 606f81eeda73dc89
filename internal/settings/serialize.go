package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func nsecToTime(nsec int64) time.Time {
	return time.Unix(0, nsec).UTC()
}

// Serialize returns name's records encoded as the wire blob carried by
// a VALUE_CHANGED message: one line per record, "priority|timestamp-ns|
// escaped-value", newline-terminated. An empty string means name has
// no records.
func (st *Store) Serialize(name string) string {
	records := st.Records(name)
	var b strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&b, "%d|%d|%s\n", rec.Priority, rec.Timestamp.UnixNano(), escapeValue(rec.Text))
	}
	return b.String()
}

// Deserialize parses a blob produced by Serialize (or by a peer's
// equivalent encoder) and applies every record it describes to name,
// with the given origin. Malformed lines are skipped; the count of
// lines successfully applied is returned alongside the first error
// encountered, if any.
func (st *Store) Deserialize(name, blob string, origin Origin) (applied int, err error) {
	lines := strings.Split(blob, "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		rec, parseErr := parseRecordLine(line)
		if parseErr != nil {
			if err == nil {
				err = parseErr
			}
			continue
		}
		st.ApplyRecord(name, rec, origin)
		applied++
	}
	return applied, err
}

func parseRecordLine(line string) (Record, error) {
	first := strings.IndexByte(line, '|')
	if first < 0 {
		return Record{}, fmt.Errorf("settings: malformed record line %q", line)
	}
	rest := line[first+1:]
	second := strings.IndexByte(rest, '|')
	if second < 0 {
		return Record{}, fmt.Errorf("settings: malformed record line %q", line)
	}

	priorityStr := line[:first]
	timestampStr := rest[:second]
	escapedValue := rest[second+1:]

	priority, err := strconv.Atoi(priorityStr)
	if err != nil {
		return Record{}, fmt.Errorf("settings: bad priority in %q: %w", line, err)
	}
	nsec, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("settings: bad timestamp in %q: %w", line, err)
	}

	return Record{
		Priority:  Priority(priority),
		Timestamp: nsecToTime(nsec),
		Text:      unescapeValue(escapedValue),
	}, nil
}
