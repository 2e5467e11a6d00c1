package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// incompleteWorkPattern matches TODO/FIXME/XXX/HACK markers anywhere in a
// line, including inside comments (spec §4.5: "Matches inside comments
// still count").
var incompleteWorkPattern = regexp.MustCompile(`(?i)\b(TODO|FIXME|XXX|HACK)\b`)

// testDoublePattern matches mock/fake/dummy used as an identifier
// (function, type, or variable name), not merely appearing in prose.
var testDoublePattern = regexp.MustCompile(`(?i)\b(func|type|var|const|let)\s+\w*(mock|fake|dummy)\w*\b|\b\w*(mock|fake|dummy)\w*\s*(:?=|\()`)

// unconditionalPassPattern matches a literal-true return from a function
// whose name encodes an authorization decision, on a single line (the
// common single-statement-body shape Phase A can catch textually; the
// general case is Phase B's job).
var unconditionalPassPattern = regexp.MustCompile(`(?i)func\s+\w*(authoriz|permit|allow|validat|verify|check)\w*\([^)]*\)[^{]*\{\s*return\s+true\s*\}`)

// simulatedOutcomePattern matches SIMULATE/DRY_RUN-style flags.
var simulatedOutcomePattern = regexp.MustCompile(`(?i)\b(SIMULATE|DRY_RUN|dry-run|DRYRUN)\b`)

// ambiguousEmptyReturnPattern matches a bare return of null/undefined/""
// from what looks like a value-returning position.
var ambiguousEmptyReturnPattern = regexp.MustCompile(`(?i)\breturn\s+(null|undefined|"")\s*;?\s*$`)

// testPathSegments identifies directories exempt from the test-double
// identifier rule only (spec §4.5: "Files under declared test directories
// are exempt from test-double identifiers only").
var testPathSegments = []string{"/test/", "/tests/", "/testdata/", "_test.go", ".test.ts", ".test.js", ".spec.ts", ".spec.js"}

func isTestPath(path string) bool {
	lower := strings.ToLower(path)
	for _, seg := range testPathSegments {
		if strings.Contains(lower, seg) {
			return true
		}
	}
	return false
}

// ScanTextual runs Phase A against content, line by line. path is used
// only to decide the test-directory exemption; scanning itself never
// depends on file extension.
func ScanTextual(path string, content string) []Violation {
	var violations []Violation
	exempt := isTestPath(path)

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lineNo := i + 1

		if loc := incompleteWorkPattern.FindString(line); loc != "" {
			violations = append(violations, Violation{
				Category: CategoryIncompleteWorkMarker,
				Line:     lineNo,
				Excerpt:  strings.TrimSpace(line),
				Detail:   fmt.Sprintf("incomplete-work marker %q", loc),
			})
		}

		if !exempt && testDoublePattern.MatchString(line) {
			violations = append(violations, Violation{
				Category: CategoryTestDoubleIdentifier,
				Line:     lineNo,
				Excerpt:  strings.TrimSpace(line),
				Detail:   "test-double identifier (mock/fake/dummy) outside a test path",
			})
		}

		if simulatedOutcomePattern.MatchString(line) {
			violations = append(violations, Violation{
				Category: CategorySimulatedOutcome,
				Line:     lineNo,
				Excerpt:  strings.TrimSpace(line),
				Detail:   "simulated-outcome flag",
			})
		}

		if ambiguousEmptyReturnPattern.MatchString(line) {
			violations = append(violations, Violation{
				Category: CategoryAmbiguousEmptyReturn,
				Line:     lineNo,
				Excerpt:  strings.TrimSpace(line),
				Detail:   "ambiguous empty return from a value-returning position",
			})
		}
	}

	// Unconditional-pass is multi-line-tolerant via a single regex over the
	// whole content (a single-statement function body may not land on one
	// scanned line once formatted); line number is recovered by locating
	// the match's start offset.
	if loc := unconditionalPassPattern.FindStringIndex(content); loc != nil {
		violations = append(violations, Violation{
			Category: CategoryUnconditionalPass,
			Line:     lineOf(content, loc[0]),
			Excerpt:  strings.TrimSpace(content[loc[0]:loc[1]]),
			Detail:   "function whose name encodes an authorization decision unconditionally returns true",
		})
	}

	return violations
}

func lineOf(content string, offset int) int {
	return strings.Count(content[:offset], "\n") + 1
}
