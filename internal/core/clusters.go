package core

import "sort"

// ClusterMap maps a cluster id to the indices of its member messages.
// Within one clustering call the members partition the input index set.
type ClusterMap map[int][]int

// IDs returns cluster ids in ascending order, the iteration order used by
// every consumer of a ClusterMap.
func (c ClusterMap) IDs() []int {
	ids := make([]int, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Size returns the number of indexed members across all clusters.
func (c ClusterMap) Size() int {
	n := 0
	for _, members := range c {
		n += len(members)
	}
	return n
}

// Contains reports whether index idx is a member of cluster id.
func (c ClusterMap) Contains(id, idx int) bool {
	for _, m := range c[id] {
		if m == idx {
			return true
		}
	}
	return false
}

// Remap translates member indices through lookup (local -> global).
func (c ClusterMap) Remap(lookup []int) ClusterMap {
	out := make(ClusterMap, len(c))
	for id, members := range c {
		mapped := make([]int, len(members))
		for i, local := range members {
			mapped[i] = lookup[local]
		}
		out[id] = mapped
	}
	return out
}
