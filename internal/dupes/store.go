package dupes

// groupStore holds the current groups and their derived stats. It has no
// locking of its own; the Engine serializes access.
type groupStore struct {
	groups []DuplicateGroup
	index  map[string]int // hash -> position in groups
	stats  Stats
}

func newGroupStore() *groupStore {
	return &groupStore{index: make(map[string]int)}
}

// replace swaps in a new result wholesale.
func (s *groupStore) replace(groups []DuplicateGroup, stats Stats) {
	s.groups = groups
	s.stats = stats
	s.reindex()
}

func (s *groupStore) clear() {
	s.replace(nil, Stats{})
}

func (s *groupStore) reindex() {
	s.index = make(map[string]int, len(s.groups))
	for i, g := range s.groups {
		s.index[g.Hash] = i
	}
}

func (s *groupStore) group(hash string) (DuplicateGroup, bool) {
	i, ok := s.index[hash]
	if !ok {
		return DuplicateGroup{}, false
	}
	return s.groups[i], true
}

// reconcile drops every succeeded file, removes groups left with fewer than
// two members and recomputes stats from the survivors.
func (s *groupStore) reconcile(succeeded map[string]struct{}) {
	if len(succeeded) == 0 {
		return
	}
	s.groups = reconcileGroups(s.groups, succeeded)
	s.stats = ComputeStats(s.groups)
	s.reindex()
}

// snapshot returns deep copies so callers cannot mutate the store.
func (s *groupStore) snapshot() ([]DuplicateGroup, Stats) {
	out := make([]DuplicateGroup, len(s.groups))
	for i, g := range s.groups {
		out[i] = copyGroup(g)
	}
	return out, s.stats
}

func reconcileGroups(groups []DuplicateGroup, succeeded map[string]struct{}) []DuplicateGroup {
	kept := make([]DuplicateGroup, 0, len(groups))
	for _, g := range groups {
		files := make([]FileRef, 0, len(g.Files))
		for _, f := range g.Files {
			if _, gone := succeeded[f.ID]; gone {
				continue
			}
			files = append(files, f)
		}
		if len(files) < 2 {
			continue
		}
		g.Files = files
		g.Count = len(files)
		kept = append(kept, g)
	}
	return kept
}

// ComputeStats derives aggregate statistics from groups.
func ComputeStats(groups []DuplicateGroup) Stats {
	var st Stats
	for _, g := range groups {
		st.TotalGroups++
		st.TotalFiles += g.Count - 1
		st.WastedSpace += g.Size * int64(g.Count-1)
	}
	return st
}

func copyGroup(g DuplicateGroup) DuplicateGroup {
	files := make([]FileRef, len(g.Files))
	copy(files, g.Files)
	g.Files = files
	return g
}
