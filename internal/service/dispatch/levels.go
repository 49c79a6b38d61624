package dispatch

import (
	"strings"
	"time"

	apperrors "github.com/nmxmxh/ovasabi-live/pkg/errors"
)

// Level is a room's activity level. It selects how many events are batched
// and how long the first one may wait.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// DefaultLevel applies to rooms without an override.
const DefaultLevel = LevelMedium

// Preset is the flush policy of a level.
type Preset struct {
	BatchSize     int
	FlushInterval time.Duration
}

var presets = map[Level]Preset{
	LevelLow:    {BatchSize: 5, FlushInterval: 200 * time.Millisecond},
	LevelMedium: {BatchSize: 10, FlushInterval: 100 * time.Millisecond},
	LevelHigh:   {BatchSize: 20, FlushInterval: 50 * time.Millisecond},
}

// ParseLevel parses low, medium or high, case-insensitively.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := presets[l]; !ok {
		return "", apperrors.Wrapf(apperrors.ErrUnknownActivityLevel, "%q", s)
	}
	return l, nil
}

// PresetFor returns the preset of l, falling back to the default level.
func PresetFor(l Level) Preset {
	if p, ok := presets[l]; ok {
		return p
	}
	return presets[DefaultLevel]
}
