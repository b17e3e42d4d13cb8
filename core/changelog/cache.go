package changelog

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// history is a merged effective history and the lengths of the base and
// override lists it was built from.
type history struct {
	baseLen     int
	overrideLen int
	merged      []Change
}

// historyCache keeps merged histories per variant. Both source lists are
// append-only between invalidations, and anything appended after a merge
// carries a higher sequence number than every change in it, so a cached
// history is extended by merging only the two tails.
type historyCache struct {
	entries *lru.Cache[string, *history]
}

func newHistoryCache(size int) *historyCache {
	if size <= 0 {
		return &historyCache{}
	}
	entries, err := lru.New[string, *history](size)
	if err != nil {
		return &historyCache{}
	}
	return &historyCache{entries: entries}
}

func (h *historyCache) resolve(variantID string, base, override []Change) ([]Change, string) {
	if h.entries == nil {
		merged := mergeBySequence(base, override)
		return merged, pathMerged
	}

	cached, ok := h.entries.Get(variantID)
	if ok && cached.baseLen <= len(base) && cached.overrideLen <= len(override) {
		if cached.baseLen == len(base) && cached.overrideLen == len(override) {
			return frozen(cached.merged), pathCached
		}
		tail := mergeBySequence(base[cached.baseLen:], override[cached.overrideLen:])
		extended := &history{
			baseLen:     len(base),
			overrideLen: len(override),
			merged:      append(cached.merged, tail...),
		}
		h.entries.Add(variantID, extended)
		return frozen(extended.merged), pathExtended
	}

	fresh := &history{
		baseLen:     len(base),
		overrideLen: len(override),
		merged:      mergeBySequence(base, override),
	}
	h.entries.Add(variantID, fresh)
	return frozen(fresh.merged), pathMerged
}

func (h *historyCache) invalidate(variantID string) {
	if h.entries == nil {
		return
	}
	h.entries.Remove(variantID)
}

// mergeBySequence merges two lists sorted by sequence number into a new one.
// A sequence present in both lists is kept once.
func mergeBySequence(a, b []Change) []Change {
	out := make([]Change, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		sa, sb := a[i].Sequence(), b[j].Sequence()
		switch {
		case sa < sb:
			out = append(out, a[i])
			i++
		case sb < sa:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// frozen caps s so appends by the caller never write into shared storage.
func frozen(s []Change) []Change {
	return s[:len(s):len(s)]
}
