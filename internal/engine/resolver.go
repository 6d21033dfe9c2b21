package engine

import (
	"sort"

	"github.com/navsight/advisor/pkg/schema"
)

// candidate is one rendered action plus the ordering metadata the resolver
// needs. inputIndex is the stable position in the run's candidate stream.
type candidate struct {
	action     schema.Action
	ruleIndex  int
	inputIndex int
	dedupeKey  string
	maxPerType int
}

// reduce collapses duplicate candidates, applies per-type caps, and produces
// the final deterministic order. Nothing here depends on map iteration order:
// every grouping walks candidates in input order and every sort is stable
// with a total key.
func reduce(candidates []candidate) []schema.Action {
	survivors := dedupe(candidates)

	// Final order before capping: priority ascending (lower number = more
	// urgent), then rule declaration order, then stable input order.
	sort.SliceStable(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.action.Priority != b.action.Priority {
			return a.action.Priority < b.action.Priority
		}
		if a.ruleIndex != b.ruleIndex {
			return a.ruleIndex < b.ruleIndex
		}
		return a.inputIndex < b.inputIndex
	})

	return capPerType(survivors)
}

// dedupe merges candidates whose rendered dedupe keys collide. The survivor
// is the one from the most urgent rule (lowest priority number), ties broken
// by declaration order. Candidates without a key never merge.
func dedupe(candidates []candidate) []candidate {
	byKey := make(map[string]int, len(candidates))
	out := make([]candidate, 0, len(candidates))

	for _, c := range candidates {
		if c.dedupeKey == "" {
			out = append(out, c)
			continue
		}
		at, seen := byKey[c.dedupeKey]
		if !seen {
			byKey[c.dedupeKey] = len(out)
			out = append(out, c)
			continue
		}
		if moreUrgent(c, out[at]) {
			out[at] = c
		}
	}
	return out
}

func moreUrgent(a, b candidate) bool {
	if a.action.Priority != b.action.Priority {
		return a.action.Priority < b.action.Priority
	}
	return a.ruleIndex < b.ruleIndex
}

// capPerType truncates each action-type group to its effective max_per_type, keeping
// the most urgent entries. The effective cap for a type is the smallest cap
// declared by any surviving rule of that type; zero means uncapped.
func capPerType(survivors []candidate) []schema.Action {
	caps := make(map[string]int)
	for _, c := range survivors {
		if c.maxPerType <= 0 {
			continue
		}
		cur, ok := caps[c.action.Type]
		if !ok || c.maxPerType < cur {
			caps[c.action.Type] = c.maxPerType
		}
	}

	counts := make(map[string]int)
	actions := make([]schema.Action, 0, len(survivors))
	for _, c := range survivors {
		limit, capped := caps[c.action.Type]
		if capped && counts[c.action.Type] >= limit {
			continue
		}
		counts[c.action.Type]++
		actions = append(actions, c.action)
	}
	return actions
}
