package challenge

import (
	"math/rand/v2"

	"github.com/dukerupert/serene/internal/assessment"
)

const (
	// DefaultTarget is the size of a freshly drawn active set.
	DefaultTarget = 3

	// LowWaterMark is the fewest uncompleted active challenges before the
	// set is replenished.
	LowWaterMark = 2
)

// SelectInitial draws an active set biased toward the severity tier.
// Completed challenges are skipped. Short preferred pools are backfilled
// uniformly from the rest of the catalog, so the result reaches target
// whenever enough uncompleted challenges exist.
func (c *Catalog) SelectInitial(tier assessment.Severity, completed Set, target int, rng *rand.Rand) []Definition {
	if target <= 0 {
		target = DefaultTarget
	}

	picked := make([]Definition, 0, target)
	taken := make(Set, target)
	take := func(defs []Definition, n int) {
		for _, d := range defs {
			if n == 0 || len(picked) == target {
				return
			}
			if taken.Has(d.ID) {
				continue
			}
			picked = append(picked, d)
			taken.Add(d.ID)
			n--
		}
	}

	switch tier {
	case assessment.SeverityModeratelySevere, assessment.SeveritySevere:
		take(c.eligible(AffinityHigh, completed, rng), target)
		take(c.eligible(AffinityMedium, completed, rng), target)
	case assessment.SeverityModerate:
		take(c.eligible(AffinityMedium, completed, rng), 1)
		take(c.eligible(AffinityLow, completed, rng), 1)
	case assessment.SeverityMild, assessment.SeverityMinimal:
		take(c.eligible(AffinityLow, completed, rng), target)
	}

	take(shuffled(c.excluding(completed), rng), target)
	return picked
}

// Replenish draws a fresh active set uniformly from the uncompleted
// challenges. When fewer than target remain the pool is exhausted: reset is
// true, the caller must clear its completed set, and the draw comes from the
// full catalog.
func (c *Catalog) Replenish(completed Set, target int, rng *rand.Rand) (defs []Definition, reset bool) {
	if target <= 0 {
		target = DefaultTarget
	}

	available := c.excluding(completed)
	if len(available) < target {
		available = c.All()
		reset = true
	}

	available = shuffled(available, rng)
	return available[:min(target, len(available))], reset
}

// Remaining returns the active challenges not yet completed.
func Remaining(active []Definition, completed Set) []Definition {
	var out []Definition
	for _, d := range active {
		if !completed.Has(d.ID) {
			out = append(out, d)
		}
	}
	return out
}

// NeedsReplenish reports whether the uncompleted part of the active set has
// dropped below LowWaterMark.
func NeedsReplenish(active []Definition, completed Set) bool {
	return len(Remaining(active, completed)) < LowWaterMark
}

func (c *Catalog) eligible(a Affinity, completed Set, rng *rand.Rand) []Definition {
	var out []Definition
	for _, d := range c.defs {
		if d.Affinity == a && !completed.Has(d.ID) {
			out = append(out, d)
		}
	}
	return shuffled(out, rng)
}

func (c *Catalog) excluding(completed Set) []Definition {
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		if !completed.Has(d.ID) {
			out = append(out, d)
		}
	}
	return out
}

func shuffled(defs []Definition, rng *rand.Rand) []Definition {
	rng.Shuffle(len(defs), func(i, j int) { defs[i], defs[j] = defs[j], defs[i] })
	return defs
}
