package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

type rawEntry = map[string]json.RawMessage

// overlayEntries encodes updates and writes each one's keys over the base
// entry chosen by match, so fields the update type does not model are kept.
// match returns -1 when an update has no base entry. When base is not a list
// of objects the updates are encoded as they are.
func overlayEntries[T any](base json.RawMessage, updates []T, match func(base []rawEntry, i int, entry rawEntry) int) (json.RawMessage, error) {
	var baseEntries []rawEntry
	if len(base) > 0 {
		if err := json.Unmarshal(base, &baseEntries); err != nil {
			baseEntries = nil
		}
	}

	out := make([]rawEntry, 0, len(updates))
	for i, u := range updates {
		entry, err := toRawEntry(u)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		j := match(baseEntries, i, entry)
		if j < 0 || j >= len(baseEntries) {
			out = append(out, entry)
			continue
		}
		merged := make(rawEntry, len(baseEntries[j])+len(entry))
		for k, v := range baseEntries[j] {
			merged[k] = v
		}
		for k, v := range entry {
			merged[k] = v
		}
		out = append(out, merged)
	}
	return json.Marshal(out)
}

func toRawEntry(v any) (rawEntry, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var entry rawEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	// A nil slice in the update leaves the base value alone.
	for k, v := range entry {
		if string(v) == "null" {
			delete(entry, k)
		}
	}
	return entry, nil
}

// byIndex pairs the i-th update with the i-th base entry.
func byIndex(base []rawEntry, i int, _ rawEntry) int {
	if i < len(base) {
		return i
	}
	return -1
}

// byName pairs an update with the base entry of the same name, ignoring case.
func byName(base []rawEntry, _ int, entry rawEntry) int {
	name := entryName(entry)
	if name == "" {
		return -1
	}
	for j, b := range base {
		if entryName(b) == name {
			return j
		}
	}
	return -1
}

func entryName(entry rawEntry) string {
	var name string
	_ = json.Unmarshal(entry["name"], &name)
	return strings.ToLower(strings.TrimSpace(name))
}

// setWork overlays work entries onto the base work section by position.
func (d Document) setWork(work []Experience) error {
	raw, err := overlayEntries(d[SectionWork], work, byIndex)
	if err != nil {
		return fmt.Errorf("encode section %q: %w", SectionWork, err)
	}
	d[SectionWork] = raw
	return nil
}
