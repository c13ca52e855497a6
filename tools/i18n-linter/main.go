// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-linter checks that every message ID passed to i18n.T exists in the
// English catalog, that every other catalog defines the same IDs with the
// same number of format verbs, and reports IDs no code uses.
//
// Usage:
//
//	go run ./tools/i18n-linter
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Location stores the file and line number of a found ID.
type Location struct {
	Filepath string
	Line     int
}

const (
	localesDir    = "internal/i18n/locales"
	primaryLocale = "en.yaml"
	projectRoot   = "."
)

// report is the outcome of one lint run.
type report struct {
	Undefined map[string][]Location // used in code, missing from the primary catalog
	Orphaned  []string              // in the primary catalog, unused
	Missing   map[string][]string   // catalog file -> IDs it lacks
	Verbs     map[string][]string   // catalog file -> IDs whose verb count differs
}

func (r report) failed() bool {
	return len(r.Undefined) > 0 || len(r.Missing) > 0 || len(r.Verbs) > 0
}

func main() {
	fmt.Println("🔍 Running i18n linter...")
	r, err := lint(projectRoot, localesDir)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	printReport(r)
	if r.failed() {
		fmt.Println("❌ Found issues that need to be addressed.")
		os.Exit(1)
	}
	if len(r.Orphaned) > 0 {
		fmt.Println("⚠️  Found orphaned IDs. Please consider removing them.")
		return
	}
	fmt.Println("✅ All translation files are consistent!")
}

func lint(root, locales string) (report, error) {
	r := report{
		Undefined: map[string][]Location{},
		Missing:   map[string][]string{},
		Verbs:     map[string][]string{},
	}
	used, err := findUsedIDs(root)
	if err != nil {
		return r, fmt.Errorf("scanning sources: %w", err)
	}
	primary, err := loadCatalog(filepath.Join(locales, primaryLocale))
	if err != nil {
		return r, fmt.Errorf("loading primary locale %s: %w", primaryLocale, err)
	}

	for id, locs := range used {
		if _, ok := primary[id]; !ok {
			r.Undefined[id] = locs
		}
	}
	for id := range primary {
		if _, ok := used[id]; !ok {
			r.Orphaned = append(r.Orphaned, id)
		}
	}
	sort.Strings(r.Orphaned)

	files, err := filepath.Glob(filepath.Join(locales, "*.yaml"))
	if err != nil {
		return r, err
	}
	for _, file := range files {
		name := filepath.Base(file)
		if name == primaryLocale {
			continue
		}
		other, err := loadCatalog(file)
		if err != nil {
			return r, fmt.Errorf("loading %s: %w", name, err)
		}
		for id, text := range primary {
			otherText, ok := other[id]
			switch {
			case !ok:
				r.Missing[name] = append(r.Missing[name], id)
			case countVerbs(otherText) != countVerbs(text):
				r.Verbs[name] = append(r.Verbs[name], id)
			}
		}
		sort.Strings(r.Missing[name])
		sort.Strings(r.Verbs[name])
		if len(r.Missing[name]) == 0 {
			delete(r.Missing, name)
		}
		if len(r.Verbs[name]) == 0 {
			delete(r.Verbs, name)
		}
	}
	return r, nil
}

func printReport(r report) {
	section := func(title string) { fmt.Printf("\n--- %s ---\n", title) }

	section("IDs used in code but not defined")
	if len(r.Undefined) == 0 {
		fmt.Println("  ✨ None found.")
	}
	ids := make([]string, 0, len(r.Undefined))
	for id := range r.Undefined {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		loc := r.Undefined[id][0]
		fmt.Printf("  - Undefined: %s (%s:%d)\n", id, loc.Filepath, loc.Line)
	}

	section("Orphaned IDs")
	if len(r.Orphaned) == 0 {
		fmt.Println("  ✨ None found.")
	}
	for _, id := range r.Orphaned {
		fmt.Printf("  - Orphaned: %s\n", id)
	}

	section("Catalog consistency")
	if len(r.Missing) == 0 && len(r.Verbs) == 0 {
		fmt.Println("  ✨ All catalogs match.")
	}
	for file, ids := range r.Missing {
		for _, id := range ids {
			fmt.Printf("  - %s missing: %s\n", file, id)
		}
	}
	for file, ids := range r.Verbs {
		for _, id := range ids {
			fmt.Printf("  - %s format verbs differ: %s\n", file, id)
		}
	}
	fmt.Println()
}

var tCall = regexp.MustCompile(`i18n\.T\("([^"]+)"`)

// findUsedIDs scans non-test Go files below root for i18n.T("id") calls.
func findUsedIDs(root string) (map[string][]Location, error) {
	ids := make(map[string][]Location)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "tools" || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for i, line := range strings.Split(string(content), "\n") {
			for _, m := range tCall.FindAllStringSubmatch(line, -1) {
				ids[m[1]] = append(ids[m[1]], Location{Filepath: path, Line: i + 1})
			}
		}
		return nil
	})
	return ids, err
}

// loadCatalog reads a locale file into a flat id -> text map. Nested maps
// are joined with dots.
func loadCatalog(path string) (map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	flatten("", data, out)
	return out, nil
}

func flatten(prefix string, node any, out map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		for k, val := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, val, out)
		}
	default:
		if prefix != "" {
			out[prefix] = fmt.Sprint(v)
		}
	}
}

// countVerbs counts fmt verbs, ignoring escaped percent signs.
func countVerbs(s string) int {
	s = strings.ReplaceAll(s, "%%", "")
	return strings.Count(s, "%")
}
