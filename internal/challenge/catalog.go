package challenge

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEmptyCatalog     = errors.New("challenge catalog is empty")
	ErrUnknownChallenge = errors.New("unknown challenge")
)

// Affinity tags which severity tiers a challenge suits.
type Affinity string

const (
	AffinityLow    Affinity = "low"
	AffinityMedium Affinity = "medium"
	AffinityHigh   Affinity = "high"
)

// Definition is static catalog data and is never mutated at runtime.
type Definition struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Affinity    Affinity      `json:"affinity"`
	Duration    time.Duration `json:"-"`
}

// DurationMinutes is the nominal duration as shown to users.
func (d Definition) DurationMinutes() int {
	return int(d.Duration / time.Minute)
}

// Catalog is an immutable, validated set of definitions.
type Catalog struct {
	defs []Definition
	byID map[string]int
}

// NewCatalog validates defs. It fails on an empty list, duplicate IDs or
// titles, unknown affinities, and non-positive durations.
func NewCatalog(defs []Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		defs: make([]Definition, len(defs)),
		byID: make(map[string]int, len(defs)),
	}
	titles := make(map[string]bool, len(defs))

	for i, d := range defs {
		d.ID = strings.TrimSpace(d.ID)
		d.Title = strings.TrimSpace(d.Title)
		if d.ID == "" || d.Title == "" {
			return nil, fmt.Errorf("challenge %d: id and title are required", i)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("challenge %q: duplicate id", d.ID)
		}
		if titles[d.Title] {
			return nil, fmt.Errorf("challenge %q: duplicate title %q", d.ID, d.Title)
		}
		switch d.Affinity {
		case AffinityLow, AffinityMedium, AffinityHigh:
		default:
			return nil, fmt.Errorf("challenge %q: unknown affinity %q", d.ID, d.Affinity)
		}
		if d.Duration <= 0 {
			return nil, fmt.Errorf("challenge %q: duration must be positive", d.ID)
		}

		titles[d.Title] = true
		c.byID[d.ID] = i
		c.defs[i] = d
	}
	return c, nil
}

// MustCatalog is NewCatalog for static data known to be valid.
func MustCatalog(defs []Definition) *Catalog {
	c, err := NewCatalog(defs)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Len() int { return len(c.defs) }

// All returns a copy of the definitions in catalog order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Lookup resolves ids, dropping any the catalog no longer knows.
func (c *Catalog) Lookup(ids []string) []Definition {
	out := make([]Definition, 0, len(ids))
	for _, id := range ids {
		if d, ok := c.Get(id); ok {
			out = append(out, d)
		}
	}
	return out
}

// DefaultDefinitions is the built-in catalog of ten calming exercises.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			ID:          "box-breathing",
			Title:       "Box Breathing (4-4-4-4)",
			Description: "Breathe in a steady box pattern to quickly calm the nervous system.",
			Category:    "Breathwork",
			Affinity:    AffinityHigh,
			Duration:    5 * time.Minute,
		},
		{
			ID:          "breathing-4-7-8",
			Title:       "4-7-8 Breathing",
			Description: "Reduce stress with a controlled 4-7-8 breathing cycle.",
			Category:    "Breathwork",
			Affinity:    AffinityHigh,
			Duration:    4 * time.Minute,
		},
		{
			ID:          "grounding-54321",
			Title:       "5-4-3-2-1 Grounding",
			Description: "Ease anxiety by noticing five sights, four sounds, three textures, two smells and one taste.",
			Category:    "Grounding",
			Affinity:    AffinityHigh,
			Duration:    3 * time.Minute,
		},
		{
			ID:          "reach-out",
			Title:       "Reach Out to Someone",
			Description: "Send a message or call someone you trust and tell them how you are doing.",
			Category:    "Connection",
			Affinity:    AffinityHigh,
			Duration:    10 * time.Minute,
		},
		{
			ID:          "muscle-relaxation",
			Title:       "Progressive Muscle Relaxation",
			Description: "Release tension by tensing and relaxing muscle groups from head to toe.",
			Category:    "Relaxation",
			Affinity:    AffinityMedium,
			Duration:    10 * time.Minute,
		},
		{
			ID:          "body-scan",
			Title:       "Body Scan Meditation",
			Description: "Scan your body with gentle awareness to ground yourself in the present moment.",
			Category:    "Mindfulness",
			Affinity:    AffinityMedium,
			Duration:    12 * time.Minute,
		},
		{
			ID:          "gentle-stretch",
			Title:       "Gentle Stretch to De-Stress",
			Description: "Light, mindful movement to release tension and reset your mood.",
			Category:    "Movement",
			Affinity:    AffinityMedium,
			Duration:    8 * time.Minute,
		},
		{
			ID:          "guided-imagery",
			Title:       "Guided Imagery: Calm Place",
			Description: "Imagine a safe, serene space and let your mind settle there.",
			Category:    "Mindfulness",
			Affinity:    AffinityLow,
			Duration:    10 * time.Minute,
		},
		{
			ID:          "gratitude-list",
			Title:       "Three Good Things",
			Description: "Write down three things that went well today and why.",
			Category:    "Journaling",
			Affinity:    AffinityLow,
			Duration:    5 * time.Minute,
		},
		{
			ID:          "mindful-walk",
			Title:       "Mindful Walk",
			Description: "Take a short walk outside and pay attention to each step and breath.",
			Category:    "Movement",
			Affinity:    AffinityLow,
			Duration:    15 * time.Minute,
		},
	}
}
