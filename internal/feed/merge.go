package feed

// Merge collapses batches into a sequence of unique items.
//
//   - ids present in seen are dropped, as are items without a link
//   - a repeated id keeps its first position but takes the metadata of its
//     last occurrence (last write wins)
//
// Merge does not modify its inputs.
func Merge(seen Set, batches ...[]Item) []Item {
	index := map[string]int{}
	var out []Item
	for _, batch := range batches {
		for _, it := range batch {
			id := it.ID()
			if id == "" || seen.Has(id) {
				continue
			}
			it.Link = id
			if i, ok := index[id]; ok {
				out[i] = it
				continue
			}
			index[id] = len(out)
			out = append(out, it)
		}
	}
	return out
}

// Count returns the total number of items across batches.
func Count(batches [][]Item) int {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	return n
}
