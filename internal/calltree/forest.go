package calltree

import "sort"

// Forest maps a thread id to its root records, ordered by start time.
type Forest map[uint64][]*CallRecord

// Threads returns the thread ids in ascending order.
func (f Forest) Threads() []uint64 {
	ids := make([]uint64, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids
}

// Walk visits every record of every thread, threads in ascending id order.
func (f Forest) Walk(fn func(r *CallRecord, depth int) error) error {
	for _, id := range f.Threads() {
		for _, root := range f[id] {
			if err := Walk(root, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// TotalNS sums the cumulative time of a thread's roots.
func (f Forest) TotalNS(threadID uint64) uint64 {
	var total uint64
	for _, root := range f[threadID] {
		total += root.CumulativeNS()
	}
	return total
}

// Relink restores parent links on every tree.
func (f Forest) Relink() {
	for _, roots := range f {
		for _, root := range roots {
			root.parent = nil
			root.Relink()
		}
	}
}
