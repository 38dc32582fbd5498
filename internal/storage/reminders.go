package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrCorrupt marks a reminder file that is not a JSON array.
var ErrCorrupt = errors.New("reminder file corrupt")

// naiveLayout is how run times are written: local wall clock, no zone,
// fractional seconds only when present.
const naiveLayout = "2006-01-02T15:04:05.999999"

var (
	naiveLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02T15:04Z07:00",
	}
)

// ReminderRecord is one pending reminder as persisted.
type ReminderRecord struct {
	ID      int64
	ChatID  int64
	RunAt   time.Time
	Message string
}

type reminderJSON struct {
	ID       int64  `json:"id"`
	ChatID   int64  `json:"chat_id"`
	Datetime string `json:"datetime"`
	Message  string `json:"message"`
}

// ReminderFile reads and writes the full reminder set as one JSON array.
// Datetimes are stored without a zone and read back in Location.
type ReminderFile struct {
	path string
	loc  *time.Location

	mu sync.Mutex
}

func NewReminderFile(path string, loc *time.Location) *ReminderFile {
	if loc == nil {
		loc = time.Local
	}
	return &ReminderFile{path: path, loc: loc}
}

func (f *ReminderFile) Path() string { return f.path }

func (f *ReminderFile) Location() *time.Location { return f.loc }

// Load returns the reminders due strictly after now.
//
// A missing file yields nothing and no error. A file that is not a JSON array
// yields nothing and an error wrapping ErrCorrupt. Individual records with an
// unreadable datetime, a non-positive or repeated id, or a run time not after
// now are skipped; skipped counts how many.
func (f *ReminderFile) Load(now time.Time) (out []ReminderRecord, skipped int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	if strings.TrimSpace(string(b)) == "" {
		return nil, 0, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}

	seen := make(map[int64]struct{}, len(raw))
	for _, r := range raw {
		var rec reminderJSON
		if err := json.Unmarshal(r, &rec); err != nil || rec.ID <= 0 {
			skipped++
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			skipped++
			continue
		}
		at, err := ParseRunAt(rec.Datetime, f.loc)
		if err != nil || !at.After(now) {
			skipped++
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, ReminderRecord{ID: rec.ID, ChatID: rec.ChatID, RunAt: at, Message: rec.Message})
	}
	return out, skipped, nil
}

// Save replaces the file with recs, going through a temp file and rename so
// a crash never leaves a half-written array behind.
func (f *ReminderFile) Save(recs []ReminderRecord) error {
	out := make([]reminderJSON, 0, len(recs))
	for _, r := range recs {
		out = append(out, reminderJSON{
			ID:       r.ID,
			ChatID:   r.ChatID,
			Datetime: FormatRunAt(r.RunAt, f.loc),
			Message:  r.Message,
		})
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// FormatRunAt renders t as a zone-less wall clock in loc.
func FormatRunAt(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(naiveLayout)
}

// ParseRunAt accepts naive ISO-8601 forms (read as wall clock in loc) and
// zoned forms (converted to loc).
func ParseRunAt(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised datetime %q", s)
}
