package thread

import (
	"cmp"
	"slices"
)

// CompareNewestFirst orders messages by CreatedAt descending. Messages created
// at the same instant are ordered by ID descending so the order is total.
func CompareNewestFirst(a, b Message) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}

	return cmp.Compare(b.ID, a.ID)
}

// SortNewestFirst returns a sorted copy of msgs. The input is left untouched.
func SortNewestFirst(msgs []Message) []Message {
	sorted := slices.Clone(msgs)
	slices.SortFunc(sorted, CompareNewestFirst)

	return sorted
}

// IsNewestFirst reports whether msgs is in display order.
func IsNewestFirst(msgs []Message) bool {
	return slices.IsSortedFunc(msgs, CompareNewestFirst)
}

// Dedupe drops repeated IDs, keeping the last occurrence of each at the
// position of its first one.
func Dedupe(msgs []Message) []Message {
	return MergeByID(nil, msgs)
}

// MergeByID returns the union of existing and incoming keyed by message ID. An
// incoming message replaces an existing one with the same ID. Neither input is
// modified.
func MergeByID(existing, incoming []Message) []Message {
	out := make([]Message, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))

	add := func(m Message) {
		if i, ok := index[m.ID]; ok {
			out[i] = m
			return
		}
		index[m.ID] = len(out)
		out = append(out, m)
	}

	for _, m := range existing {
		add(m)
	}
	for _, m := range incoming {
		add(m)
	}

	return out
}

// ReplaceHead applies a freshly fetched newest page on top of an existing
// collection. Let boundary be the oldest CreatedAt in head:
//   - existing entries whose ID appears in head are replaced,
//   - existing entries strictly newer than boundary that head no longer
//     contains are dropped, since they fell out of the head window,
//   - everything else, which includes older paginated pages, is kept.
//
// An empty head leaves the collection as it is.
func ReplaceHead(existing, head []Message) []Message {
	if len(head) == 0 {
		return slices.Clone(existing)
	}

	head = Dedupe(head)

	boundary := head[0].CreatedAt
	inHead := make(map[string]struct{}, len(head))
	for _, m := range head {
		inHead[m.ID] = struct{}{}
		if m.CreatedAt.Before(boundary) {
			boundary = m.CreatedAt
		}
	}

	out := make([]Message, 0, len(existing)+len(head))
	out = append(out, head...)
	for _, m := range existing {
		if _, ok := inHead[m.ID]; ok {
			continue
		}
		if m.CreatedAt.After(boundary) {
			continue
		}
		out = append(out, m)
	}

	return out
}
