package gate

import (
	"bytes"
	"fmt"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
)

// ApplyPatch applies a unified-diff patch to original, returning the
// resulting content (spec §4.7 G4: "Patch application is unified-diff
// semantics; any hunk failing to apply aborts with a patch error"). Hunk
// parsing is done by sourcegraph/go-diff; hunk application against the
// original content is hand-rolled, since the parser package only exposes
// the parsed hunk structure, not an apply operation.
func ApplyPatch(original []byte, patch []byte) ([]byte, error) {
	hunks, err := diff.ParseHunks(patch)
	if err != nil {
		return nil, gkerrors.Wrap(gkerrors.PhaseWrite, gkerrors.CodePatchDoesNotApply,
			"failed to parse unified-diff patch", err)
	}
	if len(hunks) == 0 {
		return nil, gkerrors.New(gkerrors.PhaseWrite, gkerrors.CodePatchDoesNotApply,
			"patch contains no hunks")
	}

	origLines := splitLinesKeepEnds(original)
	var result []byte
	origIdx := 0 // 0-based cursor into origLines

	for _, h := range hunks {
		startLine := int(h.OrigStartLine) - 1
		if h.OrigLines == 0 {
			// An insertion-only hunk (OrigLines==0) in unified-diff
			// convention points one line before the insertion point.
			startLine = int(h.OrigStartLine)
		}
		if startLine < origIdx || startLine > len(origLines) {
			return nil, gkerrors.New(gkerrors.PhaseWrite, gkerrors.CodePatchDoesNotApply,
				fmt.Sprintf("hunk starting at original line %d is out of order or out of range (have %d lines)", h.OrigStartLine, len(origLines)))
		}

		// Copy unchanged lines between the previous hunk and this one verbatim.
		for ; origIdx < startLine; origIdx++ {
			result = append(result, origLines[origIdx]...)
		}

		applied, consumed, err := applyHunkBody(h.Body, origLines[origIdx:])
		if err != nil {
			return nil, gkerrors.Wrap(gkerrors.PhaseWrite, gkerrors.CodePatchDoesNotApply,
				"hunk failed to apply against current content", err)
		}
		result = append(result, applied...)
		origIdx += consumed
	}

	for ; origIdx < len(origLines); origIdx++ {
		result = append(result, origLines[origIdx]...)
	}

	return result, nil
}

// applyHunkBody walks a hunk's body lines (prefixed ' ', '+', '-') against
// the corresponding slice of the original file, verifying context and
// removed lines match, and returns the materialized replacement plus how
// many original lines the hunk consumed.
func applyHunkBody(body []byte, origTail [][]byte) ([]byte, int, error) {
	var out []byte
	origCursor := 0

	for _, line := range splitDiffBodyLines(body) {
		if len(line) == 0 {
			continue
		}
		marker := line[0]
		content := line[1:]

		switch marker {
		case ' ':
			if origCursor >= len(origTail) || !bytes.Equal(trimNewline(origTail[origCursor]), content) {
				return nil, 0, fmt.Errorf("context line mismatch at offset %d", origCursor)
			}
			out = append(out, origTail[origCursor]...)
			origCursor++
		case '-':
			if origCursor >= len(origTail) || !bytes.Equal(trimNewline(origTail[origCursor]), content) {
				return nil, 0, fmt.Errorf("removed line mismatch at offset %d", origCursor)
			}
			origCursor++
		case '+':
			out = append(out, content...)
			out = append(out, '\n')
		default:
			return nil, 0, fmt.Errorf("unrecognized diff line marker %q", marker)
		}
	}

	return out, origCursor, nil
}

// splitLinesKeepEnds splits content into lines, each retaining its
// trailing newline (if any) so concatenation reconstructs byte-identical
// unchanged spans.
func splitLinesKeepEnds(content []byte) [][]byte {
	if len(content) == 0 {
		return nil
	}
	var lines [][]byte
	start := 0
	for i, b := range content {
		if b == '\n' {
			lines = append(lines, content[start:i+1])
			start = i + 1
		}
	}
	if start < len(content) {
		lines = append(lines, content[start:])
	}
	return lines
}

// splitDiffBodyLines splits a hunk's raw body into its constituent marker
// lines, dropping the trailing newline from each for comparison purposes
// (the marker and its content are retained; newlines are reattached by the
// caller when emitting output).
func splitDiffBodyLines(body []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range body {
		if b == '\n' {
			lines = append(lines, body[start:i])
			start = i + 1
		}
	}
	if start < len(body) {
		lines = append(lines, body[start:])
	}
	return lines
}

func trimNewline(line []byte) []byte {
	return bytes.TrimRight(line, "\n")
}
