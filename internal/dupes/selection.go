package dupes

// SelectFile adds id to the selection. Membership in a group is not checked.
func (e *Engine) SelectFile(id string) {
	e.mu.Lock()
	e.selected[id] = struct{}{}
	e.mu.Unlock()
}

// DeselectFile removes id from the selection.
func (e *Engine) DeselectFile(id string) {
	e.mu.Lock()
	delete(e.selected, id)
	e.mu.Unlock()
}

// IsSelected reports whether id is currently selected.
func (e *Engine) IsSelected(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.selected[id]
	return ok
}

// ClearSelection empties the selection set.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	e.selected = make(map[string]struct{})
	e.mu.Unlock()
}

// SelectFilesInGroup replaces the group's contribution to the selection with
// exactly ids. Selections outside the group are left alone.
func (e *Engine) SelectFilesInGroup(hash string, ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selectFilesInGroupLocked(hash, ids)
}

func (e *Engine) selectFilesInGroupLocked(hash string, ids []string) {
	if g, ok := e.store.group(hash); ok {
		for _, f := range g.Files {
			delete(e.selected, f.ID)
		}
	}
	for _, id := range ids {
		e.selected[id] = struct{}{}
	}
}

// SelectByStrategy keeps one file of the group according to strategy and
// selects every other member. Groups with fewer than two files, and unknown
// hashes, are left untouched.
func (e *Engine) SelectByStrategy(hash string, strategy Strategy) error {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.store.group(hash)
	if !ok || len(g.Files) < 2 {
		return nil
	}
	e.selectFilesInGroupLocked(hash, deleteCandidates(g.Files, strategy))
	return nil
}

// SelectAllByStrategy applies strategy to every group and returns how many
// groups were updated.
func (e *Engine) SelectAllByStrategy(strategy Strategy) (int, error) {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, g := range e.store.groups {
		if len(g.Files) < 2 {
			continue
		}
		e.selectFilesInGroupLocked(g.Hash, deleteCandidates(g.Files, strategy))
		n++
	}
	return n, nil
}

// deleteCandidates returns every file id except the strategy's keeper.
func deleteCandidates(files []FileRef, strategy Strategy) []string {
	keep, err := Keeper(files, strategy)
	if err != nil || keep < 0 {
		return nil
	}
	ids := make([]string, 0, len(files)-1)
	for i, f := range files {
		if i != keep {
			ids = append(ids, f.ID)
		}
	}
	return ids
}
