package rtpdemux

// Helpers over the insertion-ordered multimaps backing the demultiplexers.
// Each key maps to a slice of values with set semantics per (key, value)
// pair; slices stay short (the sinks of one stream), so linear scans are
// cheaper than any indexed structure would be.

func containsValue[V comparable](list []V, target V) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

// removeValue removes the first occurrence of target from list. With set
// semantics there is at most one.
func removeValue[V comparable](list []V, target V) ([]V, bool) {
	for i, v := range list {
		if v == target {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

// removeValueFromTable removes target from every bucket of table, deleting
// buckets left empty. Reports whether anything was removed.
func removeValueFromTable[K comparable, V comparable](table map[K][]V, target V) bool {
	removed := false
	for key, list := range table {
		pruned, ok := removeValue(list, target)
		if !ok {
			continue
		}
		removed = true
		if len(pruned) == 0 {
			delete(table, key)
		} else {
			table[key] = pruned
		}
	}
	return removed
}
