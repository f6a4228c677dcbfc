package models

import (
	"fmt"
	"strings"
)

// WatchStatus is the derived state of a title for the viewer. It is computed and never stored.
type WatchStatus int

const (
	Planning WatchStatus = iota
	Current
	Paused
	Dropped
	Completed
)

var watchStatusNames = [...]string{"planning", "current", "paused", "dropped", "completed"}

func (s WatchStatus) String() string {
	if s < Planning || s > Completed {
		return fmt.Sprintf("WatchStatus(%d)", int(s))
	}
	return watchStatusNames[s]
}

// AniList returns the MediaListStatus enum value.
func (s WatchStatus) AniList() string {
	return strings.ToUpper(s.String())
}

// ParseWatchStatus accepts lower-case names and AniList enum values. REPEATING reads as [Current].
func ParseWatchStatus(v string) (WatchStatus, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "repeating" {
		return Current, nil
	}
	for i, name := range watchStatusNames {
		if name == v {
			return WatchStatus(i), nil
		}
	}
	return Planning, fmt.Errorf("unknown watch status %q", v)
}

func (s WatchStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *WatchStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseWatchStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
