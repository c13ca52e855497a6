// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package manifest

import (
	"sort"

	"github.com/toeirei/launchpad/internal/model"
)

// Change is a package whose pinned version differs between two manifests.
type Change struct {
	Name string
	From string
	To   string
}

// Changes lists the differences between two manifests, sorted by name.
type Changes struct {
	Added   []model.Dependency
	Removed []model.Dependency
	Changed []Change
}

// Empty reports whether both manifests pin the same set.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// Diff compares old against new by normalised package name.
func Diff(old, new *model.Manifest) Changes {
	index := func(m *model.Manifest) map[string]model.Dependency {
		out := make(map[string]model.Dependency)
		if m == nil {
			return out
		}
		for _, d := range m.Dependencies {
			out[NormalizeName(d.Name)] = d
		}
		return out
	}
	before, after := index(old), index(new)

	var c Changes
	for key, d := range after {
		prev, ok := before[key]
		switch {
		case !ok:
			c.Added = append(c.Added, d)
		case prev.Version != d.Version:
			c.Changed = append(c.Changed, Change{Name: d.Name, From: prev.Version, To: d.Version})
		}
	}
	for key, d := range before {
		if _, ok := after[key]; !ok {
			c.Removed = append(c.Removed, d)
		}
	}

	byName := func(s []model.Dependency) {
		sort.Slice(s, func(i, j int) bool { return NormalizeName(s[i].Name) < NormalizeName(s[j].Name) })
	}
	byName(c.Added)
	byName(c.Removed)
	sort.Slice(c.Changed, func(i, j int) bool { return NormalizeName(c.Changed[i].Name) < NormalizeName(c.Changed[j].Name) })
	return c
}
