// Package aggregate merges per-artifact detections into the canonical multiset of recognized
// tools.
//
// Each tool's contribution is taken from the single artifact group holding the most instances
// of it, so overlapping frames of one scene do not inflate counts. Groups are scanned in the
// order given and a later group only wins with a strictly larger count.
package aggregate

import (
	"slices"
	"sort"

	"github.com/joseph-ayodele/tools-tracker/internal/entity"
)

// toolKey identifies a sub-group; detections with no catalog match share the unknown key.
type toolKey struct {
	known bool
	id    entity.ToolID
}

func keyOf(d entity.Detection) toolKey {
	if d.ToolID == nil {
		return toolKey{}
	}
	return toolKey{known: true, id: *d.ToolID}
}

func (k toolKey) less(o toolKey) bool {
	if k.known != o.known {
		return k.known
	}
	return k.id < o.id
}

// Merge returns the winning detections sorted by tool identity ascending, unknown-tool
// detections last. An empty input yields an empty, non-nil slice.
func Merge(groups []entity.DetectionGroup) []entity.Detection {
	winners := make(map[toolKey][]entity.Detection)
	var order []toolKey

	for _, g := range groups {
		sub := make(map[toolKey][]entity.Detection)
		var subOrder []toolKey
		for _, d := range g.Detections {
			k := keyOf(d)
			if _, ok := sub[k]; !ok {
				subOrder = append(subOrder, k)
			}
			sub[k] = append(sub[k], d)
		}

		for _, k := range subOrder {
			best, seen := winners[k]
			if !seen {
				order = append(order, k)
			}
			if !seen || len(sub[k]) > len(best) {
				winners[k] = sub[k]
			}
		}
	}

	merged := make([]entity.Detection, 0)
	for _, k := range order {
		merged = append(merged, winners[k]...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return keyOf(merged[i]).less(keyOf(merged[j]))
	})
	return merged
}

// ToolIDs splits a merged list into its known tool identities (order kept) and the number of
// unknown-tool detections.
func ToolIDs(merged []entity.Detection) ([]entity.ToolID, int) {
	ids := make([]entity.ToolID, 0, len(merged))
	unknown := 0
	for _, d := range merged {
		if d.ToolID == nil {
			unknown++
			continue
		}
		ids = append(ids, *d.ToolID)
	}
	return ids, unknown
}

// Sorted returns a sorted copy of ids.
func Sorted(ids []entity.ToolID) []entity.ToolID {
	out := slices.Clone(ids)
	if out == nil {
		out = []entity.ToolID{}
	}
	slices.Sort(out)
	return out
}

// EqualMultiset reports whether a and b hold the same tool identities with the same counts.
func EqualMultiset(a, b []entity.ToolID) bool {
	return slices.Equal(Sorted(a), Sorted(b))
}

// Diff counts, per tool, how many more times it occurs in a than in b. Tools with no surplus
// are omitted.
func Diff(a, b []entity.ToolID) map[entity.ToolID]int {
	counts := make(map[entity.ToolID]int)
	for _, id := range a {
		counts[id]++
	}
	for _, id := range b {
		counts[id]--
	}
	for id, n := range counts {
		if n <= 0 {
			delete(counts, id)
		}
	}
	return counts
}
