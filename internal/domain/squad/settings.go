// internal/domain/squad/settings.go
package squad

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidTierRange = errors.New("invalid tier range")
var ErrUnknownDifficulty = errors.New("unknown difficulty preset")

// Tier bounds of the external catalog (Bronze V = 1 ... Ruby I = 30).
const (
	MinTier = 1
	MaxTier = 30
)

// Problem count bounds per batch.
const (
	MinProblemCount = 1
	MaxProblemCount = 10
)

// Difficulty selects a tier range, either one of the presets or a custom pair.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"   // Bronze V .. Silver I
	DifficultyNormal Difficulty = "NORMAL" // Silver V .. Gold I
	DifficultyHard   Difficulty = "HARD"   // Gold V .. Platinum I
	DifficultyCustom Difficulty = "CUSTOM"
)

// TierRange is an inclusive tier interval.
type TierRange struct {
	Min int
	Max int
}

var presetRanges = map[Difficulty]TierRange{
	DifficultyEasy:   {Min: 1, Max: 10},
	DifficultyNormal: {Min: 6, Max: 15},
	DifficultyHard:   {Min: 11, Max: 20},
}

// Settings configures how a scope receives recommendations.
type Settings struct {
	ActiveDays    Weekdays
	Difficulty    Difficulty
	CustomMinTier int // Used only with DifficultyCustom
	CustomMaxTier int
	IncludeTags   []string
	ProblemCount  int
}

// TierRange resolves the effective tier range. A custom range with min > max
// is rejected, never swapped.
func (s Settings) TierRange() (TierRange, error) {
	if s.Difficulty == DifficultyCustom {
		return NewTierRange(s.CustomMinTier, s.CustomMaxTier)
	}
	r, ok := presetRanges[s.Difficulty]
	if !ok {
		return TierRange{}, fmt.Errorf("%w: %q", ErrUnknownDifficulty, s.Difficulty)
	}
	return r, nil
}

// NewTierRange validates a custom tier pair.
func NewTierRange(min, max int) (TierRange, error) {
	if min < MinTier || max > MaxTier {
		return TierRange{}, fmt.Errorf("%w: tiers must be within %d..%d, got %d..%d", ErrInvalidTierRange, MinTier, MaxTier, min, max)
	}
	if min > max {
		return TierRange{}, fmt.Errorf("%w: min %d is greater than max %d", ErrInvalidTierRange, min, max)
	}
	return TierRange{Min: min, Max: max}, nil
}

// Count returns the requested problem count clamped to [1, 10].
func (s Settings) Count() int {
	switch {
	case s.ProblemCount < MinProblemCount:
		return MinProblemCount
	case s.ProblemCount > MaxProblemCount:
		return MaxProblemCount
	default:
		return s.ProblemCount
	}
}

// Tags returns the non-blank inclusion tags, lowercased and de-duplicated.
func (s Settings) Tags() []string {
	seen := make(map[string]struct{}, len(s.IncludeTags))
	tags := make([]string, 0, len(s.IncludeTags))
	for _, t := range s.IncludeTags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	return tags
}

// Validate checks the settings before they are stored.
func (s Settings) Validate() error {
	if _, err := s.TierRange(); err != nil {
		return err
	}
	return nil
}
