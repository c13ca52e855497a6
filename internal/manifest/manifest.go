// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package manifest parses and fingerprints dependency manifests.
//
// A manifest is a requirements-style text file where every non-comment line
// pins exactly one package to exactly one version:
//
//	Flask==3.0.0
//	psycopg[binary]==3.1.12 ; python_version >= "3.8"  # driver
//
// Ranges, wildcards and pip options are rejected: the build step installs
// exactly what is listed and nothing else.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/toeirei/launchpad/internal/model"
)

var (
	// ErrUnpinned is returned for records that do not pin an exact version.
	ErrUnpinned = errors.New("dependency is not pinned to an exact version")
	// ErrDuplicate is returned when two records name the same package.
	ErrDuplicate = errors.New("duplicate dependency")
	// ErrInvalidLine is returned for lines that are not a requirement.
	ErrInvalidLine = errors.New("invalid requirement line")
)

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	versionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+!-]*$`)
	normalizeRun   = regexp.MustCompile(`[-_.]+`)
	rangeOperators = []string{"===", "~=", "!=", ">=", "<=", ">", "<"}
)

// LineError reports the manifest line a parse error occurred on.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *LineError) Unwrap() error { return e.Err }

// NormalizeName returns the canonical comparison form of a package name.
func NormalizeName(name string) string {
	return normalizeRun.ReplaceAllString(strings.ToLower(name), "-")
}

// ParseFile reads and parses the manifest at path.
func ParseFile(path string) (*model.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Parse reads a manifest from r. All line errors are collected and returned
// together so a broken manifest can be fixed in one pass.
func Parse(r io.Reader) (*model.Manifest, error) {
	m := &model.Manifest{}
	seen := make(map[string]int)
	var errs []error

	sc := bufio.NewScanner(r)
	lineNo := 0
	var pending strings.Builder
	startLine := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		if pending.Len() == 0 {
			startLine = lineNo
		}
		// Backslash continuations join physical lines.
		if strings.HasSuffix(raw, `\`) {
			pending.WriteString(strings.TrimSuffix(raw, `\`))
			pending.WriteString(" ")
			continue
		}
		pending.WriteString(raw)
		text := pending.String()
		pending.Reset()

		dep, ok, err := parseLine(text)
		if err != nil {
			errs = append(errs, &LineError{Line: startLine, Text: strings.TrimSpace(text), Err: err})
			continue
		}
		if !ok {
			continue
		}
		dep.Line = startLine
		key := NormalizeName(dep.Name)
		if first, dup := seen[key]; dup {
			errs = append(errs, &LineError{
				Line: startLine,
				Text: strings.TrimSpace(text),
				Err:  fmt.Errorf("%w (first declared on line %d)", ErrDuplicate, first),
			})
			continue
		}
		seen[key] = startLine
		m.Dependencies = append(m.Dependencies, dep)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if pending.Len() > 0 {
		errs = append(errs, &LineError{Line: startLine, Text: pending.String(), Err: fmt.Errorf("%w: dangling line continuation", ErrInvalidLine)})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return m, nil
}

// parseLine returns ok=false for blank and comment-only lines.
func parseLine(text string) (model.Dependency, bool, error) {
	var dep model.Dependency
	if i := strings.Index(text, "#"); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return dep, false, nil
	}
	if strings.HasPrefix(text, "-") {
		return dep, false, fmt.Errorf("%w: pip options are not supported", ErrInvalidLine)
	}

	if i := strings.Index(text, ";"); i >= 0 {
		dep.Marker = strings.TrimSpace(text[i+1:])
		text = strings.TrimSpace(text[:i])
		if dep.Marker == "" {
			return dep, false, fmt.Errorf("%w: empty environment marker", ErrInvalidLine)
		}
	}

	idx := strings.Index(text, "==")
	if idx < 0 || strings.HasPrefix(text[idx:], "===") {
		for _, op := range rangeOperators {
			if strings.Contains(text, op) {
				return dep, false, ErrUnpinned
			}
		}
		if namePattern.MatchString(stripExtras(text)) {
			return dep, false, ErrUnpinned
		}
		return dep, false, ErrInvalidLine
	}

	namePart := strings.TrimSpace(text[:idx])
	version := strings.TrimSpace(text[idx+2:])
	if strings.ContainsAny(version, ",<>!~=") {
		return dep, false, ErrUnpinned
	}
	if strings.Contains(version, "*") {
		return dep, false, fmt.Errorf("%w: wildcard version %q", ErrUnpinned, version)
	}
	if !versionPattern.MatchString(version) {
		return dep, false, fmt.Errorf("%w: bad version %q", ErrInvalidLine, version)
	}

	name, extras, err := splitExtras(namePart)
	if err != nil {
		return dep, false, err
	}
	if !namePattern.MatchString(name) {
		return dep, false, fmt.Errorf("%w: bad package name %q", ErrInvalidLine, name)
	}
	dep.Name = name
	dep.Version = version
	dep.Extras = extras
	return dep, true, nil
}

func stripExtras(s string) string {
	if i := strings.Index(s, "["); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func splitExtras(s string) (string, []string, error) {
	open := strings.Index(s, "[")
	if open < 0 {
		return s, nil, nil
	}
	if !strings.HasSuffix(s, "]") {
		return "", nil, fmt.Errorf("%w: unterminated extras in %q", ErrInvalidLine, s)
	}
	name := strings.TrimSpace(s[:open])
	var extras []string
	for _, e := range strings.Split(s[open+1:len(s)-1], ",") {
		if e = strings.TrimSpace(e); e != "" {
			extras = append(extras, e)
		}
	}
	sort.Strings(extras)
	return name, extras, nil
}

// Fingerprint returns an order-independent digest of the manifest's records.
// Two manifests that pin the same packages to the same versions produce the
// same fingerprint regardless of ordering, comments or name spelling.
func Fingerprint(m *model.Manifest) string {
	if m == nil {
		m = &model.Manifest{}
	}
	lines := make([]string, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		var b strings.Builder
		b.WriteString(NormalizeName(d.Name))
		if len(d.Extras) > 0 {
			b.WriteString("[" + strings.Join(d.Extras, ",") + "]")
		}
		b.WriteString("==")
		b.WriteString(d.Version)
		if d.Marker != "" {
			b.WriteString(";" + d.Marker)
		}
		lines = append(lines, b.String())
	}
	sort.Strings(lines)

	h := xxhash.New()
	for _, l := range lines {
		_, _ = h.WriteString(l)
		_, _ = h.WriteString("\n")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
