package checklist

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// NoCategoriesLine is rendered instead of an empty status block.
const NoCategoriesLine = "No checklist categories exist yet."

// ItemRef is the lookup entry for one item as the model saw it.
type ItemRef struct {
	ID        int64  `json:"id"`
	Category  string `json:"category"`
	Section   string `json:"section"`
	Completed bool   `json:"is_completed"`
}

// Snapshot is the immutable per-turn view of the checklist.
type Snapshot struct {
	// Status is the textual rendering included in the system prompt.
	Status string
	// Lookup maps a normalized description to every item carrying it.
	Lookup map[string][]ItemRef
}

// NormalizeDescription is the key used by Snapshot.Lookup.
func NormalizeDescription(desc string) string {
	return strings.ToLower(strings.TrimSpace(desc))
}

// BuildSnapshot renders the forest in rank order and builds the lookup map.
// The input is not modified.
func BuildSnapshot(forest []Category) Snapshot {
	snap := Snapshot{Lookup: make(map[string][]ItemRef)}
	if len(forest) == 0 {
		snap.Status = NoCategoriesLine
		return snap
	}

	var sb strings.Builder
	for i, cat := range sortedCategories(forest) {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "## %s\n", cat.Name)
		for _, sec := range sortedSections(cat.Sections) {
			fmt.Fprintf(&sb, "### %s\n", sec.Name)
			for _, it := range sortedItems(sec.Items) {
				fmt.Fprintf(&sb, "%s %s (ID: %d)\n", glyph(it.Completed), it.Description, it.ID)

				key := NormalizeDescription(it.Description)
				snap.Lookup[key] = append(snap.Lookup[key], ItemRef{
					ID:        it.ID,
					Category:  cat.Name,
					Section:   sec.Name,
					Completed: it.Completed,
				})
			}
		}
	}
	snap.Status = strings.TrimRight(sb.String(), "\n")
	return snap
}

// Resolve finds the lookup entry for an item by its description and id.
// The second return is false when the description was not part of the
// snapshot, or when it was but under a different id.
func (s Snapshot) Resolve(id int64, description string) (ItemRef, bool) {
	for _, ref := range s.Lookup[NormalizeDescription(description)] {
		if ref.ID == id {
			return ref, true
		}
	}
	return ItemRef{}, false
}

func glyph(done bool) string {
	if done {
		return "☑"
	}
	return "☐"
}

func sortedCategories(in []Category) []Category {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b Category) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func sortedSections(in []Section) []Section {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b Section) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func sortedItems(in []Item) []Item {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b Item) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})
	return out
}
