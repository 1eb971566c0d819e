package dupes

import (
	"fmt"
	"strings"
)

// ValidateGroup checks the invariants a group must satisfy before it is
// allowed into the store.
func ValidateGroup(g DuplicateGroup) error {
	if strings.TrimSpace(g.Hash) == "" {
		return fmt.Errorf("group has empty hash")
	}
	if g.Size < 0 {
		return fmt.Errorf("group %s has negative size %d", g.Hash, g.Size)
	}
	if g.Count != len(g.Files) {
		return fmt.Errorf("group %s count %d does not match %d files", g.Hash, g.Count, len(g.Files))
	}
	if g.Count < 2 {
		return fmt.Errorf("group %s has %d files, need at least 2", g.Hash, g.Count)
	}
	seen := make(map[string]struct{}, len(g.Files))
	for _, f := range g.Files {
		if f.ID == "" {
			return fmt.Errorf("group %s has a file with empty id", g.Hash)
		}
		if _, dup := seen[f.ID]; dup {
			return fmt.Errorf("group %s lists file %s twice", g.Hash, f.ID)
		}
		seen[f.ID] = struct{}{}
		if f.Size != g.Size {
			return fmt.Errorf("group %s file %s has size %d, want %d", g.Hash, f.ID, f.Size, g.Size)
		}
	}
	return nil
}

// sanitizeResult drops invalid groups and groups whose hash or file ids were
// already claimed by an earlier group. Stats are recomputed from what is kept.
func sanitizeResult(res *ScanResult) (groups []DuplicateGroup, stats Stats, rejected []error) {
	if res == nil {
		return nil, Stats{}, nil
	}

	hashes := make(map[string]struct{}, len(res.Groups))
	ids := make(map[string]struct{})
	groups = make([]DuplicateGroup, 0, len(res.Groups))

	for _, g := range res.Groups {
		if err := ValidateGroup(g); err != nil {
			rejected = append(rejected, err)
			continue
		}
		if _, dup := hashes[g.Hash]; dup {
			rejected = append(rejected, fmt.Errorf("duplicate group hash %s", g.Hash))
			continue
		}
		var clash string
		for _, f := range g.Files {
			if _, dup := ids[f.ID]; dup {
				clash = f.ID
				break
			}
		}
		if clash != "" {
			rejected = append(rejected, fmt.Errorf("group %s reuses file id %s", g.Hash, clash))
			continue
		}

		hashes[g.Hash] = struct{}{}
		for _, f := range g.Files {
			ids[f.ID] = struct{}{}
		}
		groups = append(groups, copyGroup(g))
	}

	return groups, ComputeStats(groups), rejected
}

// succeededIDs indexes delete results by id. Results with an empty id are
// ignored; if an id is reported more than once, any failure wins.
func succeededIDs(results []DeleteResult) map[string]struct{} {
	status := make(map[string]bool, len(results))
	for _, r := range results {
		if r.ID == "" {
			continue
		}
		prev, seen := status[r.ID]
		if !seen {
			status[r.ID] = r.Success
			continue
		}
		status[r.ID] = prev && r.Success
	}

	ok := make(map[string]struct{}, len(status))
	for id, success := range status {
		if success {
			ok[id] = struct{}{}
		}
	}
	return ok
}
