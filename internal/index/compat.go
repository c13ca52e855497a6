// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package index

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Compatible reports whether runtime satisfies a requires_python specifier
// such as ">=3.8, !=3.9.*, <4". An empty specifier accepts every runtime.
func Compatible(specifier, runtime string) (bool, error) {
	v, err := semver.NewVersion(strings.TrimSpace(runtime))
	if err != nil {
		return false, fmt.Errorf("invalid runtime version %q: %w", runtime, err)
	}
	for _, clause := range strings.Split(specifier, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		expr, err := translate(clause)
		if err != nil {
			return false, err
		}
		c, err := semver.NewConstraint(expr)
		if err != nil {
			return false, fmt.Errorf("unsupported specifier %q: %w", clause, err)
		}
		if !c.Check(v) {
			return false, nil
		}
	}
	return true, nil
}

var operators = []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"}

// translate rewrites one version clause into constraint syntax.
func translate(clause string) (string, error) {
	op := ""
	for _, candidate := range operators {
		if strings.HasPrefix(clause, candidate) {
			op = candidate
			break
		}
	}
	if op == "" {
		return "", fmt.Errorf("specifier %q has no operator", clause)
	}
	ver := strings.TrimSpace(strings.TrimPrefix(clause, op))
	if ver == "" {
		return "", fmt.Errorf("specifier %q has no version", clause)
	}

	if strings.HasSuffix(ver, ".*") {
		lo, hi, err := wildcardBounds(strings.TrimSuffix(ver, ".*"))
		if err != nil {
			return "", fmt.Errorf("specifier %q: %w", clause, err)
		}
		switch op {
		case "==":
			return fmt.Sprintf(">=%s, <%s", lo, hi), nil
		case "!=":
			return fmt.Sprintf("<%s || >=%s", lo, hi), nil
		default:
			return "", fmt.Errorf("specifier %q: wildcard needs == or !=", clause)
		}
	}

	switch op {
	case "===", "==":
		return "=" + padded(ver), nil
	case "~=":
		parts := strings.Split(ver, ".")
		if len(parts) < 2 {
			return "", fmt.Errorf("specifier %q: ~= needs at least two release segments", clause)
		}
		_, hi, err := wildcardBounds(strings.Join(parts[:len(parts)-1], "."))
		if err != nil {
			return "", fmt.Errorf("specifier %q: %w", clause, err)
		}
		return fmt.Sprintf(">=%s, <%s", padded(ver), hi), nil
	default:
		return op + padded(ver), nil
	}
}

// padded fills a short release with zeros, so "3.11" compares as 3.11.0
// rather than as a range. Versions with non-numeric segments are left alone.
func padded(ver string) string {
	parts := strings.Split(ver, ".")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return ver
		}
		nums[i] = n
	}
	return join(nums)
}

// wildcardBounds turns a prefix like "3.9" into the range [3.9.0, 3.10.0).
func wildcardBounds(prefix string) (string, string, error) {
	parts := strings.Split(prefix, ".")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", "", fmt.Errorf("invalid release segment %q", p)
		}
		nums[i] = n
	}
	lo := append([]int(nil), nums...)
	hi := append([]int(nil), nums...)
	hi[len(hi)-1]++
	return join(lo), join(hi), nil
}

func join(nums []int) string {
	for len(nums) < 3 {
		nums = append(nums, 0)
	}
	s := make([]string, len(nums))
	for i, n := range nums {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ".")
}
