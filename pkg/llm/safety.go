package llm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidSafety is returned for unknown categories or thresholds.
var ErrInvalidSafety = errors.New("invalid safety configuration")

// Category is a content-safety category.
type Category string

const (
	CategoryDangerousContent Category = "dangerous-content"
	CategoryHateSpeech       Category = "hate-speech"
	CategoryHarassment       Category = "harassment"
	CategorySexualContent    Category = "sexual-content"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryDangerousContent,
	CategoryHateSpeech,
	CategoryHarassment,
	CategorySexualContent,
}

// Threshold is an ordered block level; higher values block more.
type Threshold int

const (
	BlockNone Threshold = iota
	BlockOnlyHigh
	BlockMediumAndAbove
	BlockLowAndAbove
)

var thresholdNames = map[Threshold]string{
	BlockNone:           "BLOCK_NONE",
	BlockOnlyHigh:       "BLOCK_ONLY_HIGH",
	BlockMediumAndAbove: "BLOCK_MEDIUM_AND_ABOVE",
	BlockLowAndAbove:    "BLOCK_LOW_AND_ABOVE",
}

func (t Threshold) String() string {
	if s, ok := thresholdNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Threshold(%d)", int(t))
}

// ParseThreshold accepts the names above, case-insensitively, with "OFF" as an alias of BLOCK_NONE.
func ParseThreshold(s string) (Threshold, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "OFF" {
		return BlockNone, nil
	}
	for t, n := range thresholdNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown threshold %q", ErrInvalidSafety, s)
}

// ParseCategory accepts the category names, also in HARM_CATEGORY_* form.
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "harm_category_")
	name = strings.ReplaceAll(name, "_", "-")
	if name == "sexually-explicit" {
		name = string(CategorySexualContent)
	}
	for _, c := range Categories {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidSafety, s)
}

// Blocks reports whether a rating of severity s meets the threshold.
func (t Threshold) Blocks(s Severity) bool {
	switch t {
	case BlockOnlyHigh:
		return s >= SeverityHigh
	case BlockMediumAndAbove:
		return s >= SeverityMedium
	case BlockLowAndAbove:
		return s >= SeverityLow
	default:
		return false
	}
}

// SafetyConfig maps every category to its threshold.
type SafetyConfig map[Category]Threshold

// DefaultSafety blocks only high-probability harm in every category.
func DefaultSafety() SafetyConfig {
	cfg := make(SafetyConfig, len(Categories))
	for _, c := range Categories {
		cfg[c] = BlockOnlyHigh
	}
	return cfg
}

// ParseSafety builds a config from category/threshold names. Categories not
// present keep the default threshold.
func ParseSafety(values map[string]string) (SafetyConfig, error) {
	cfg := DefaultSafety()
	for k, v := range values {
		c, err := ParseCategory(k)
		if err != nil {
			return nil, err
		}
		t, err := ParseThreshold(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c, err)
		}
		cfg[c] = t
	}
	return cfg, cfg.Validate()
}

// Validate checks that the config covers exactly the known categories with known thresholds.
func (c SafetyConfig) Validate() error {
	known := make(map[Category]bool, len(Categories))
	for _, cat := range Categories {
		known[cat] = true
		if _, ok := c[cat]; !ok {
			return fmt.Errorf("%w: missing category %s", ErrInvalidSafety, cat)
		}
	}
	for cat, t := range c {
		if !known[cat] {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidSafety, cat)
		}
		if _, ok := thresholdNames[t]; !ok {
			return fmt.Errorf("%w: %s has unknown threshold %d", ErrInvalidSafety, cat, int(t))
		}
	}
	return nil
}

// Evaluate returns the categories whose rating meets their threshold, or that the
// model blocked itself, in sorted order.
func (c SafetyConfig) Evaluate(ratings []Rating) []Category {
	seen := make(map[Category]bool)
	for _, r := range ratings {
		if r.Blocked || c[r.Category].Blocks(r.Severity) {
			seen[r.Category] = true
		}
	}
	out := make([]Category, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
