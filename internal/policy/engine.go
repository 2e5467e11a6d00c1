package policy

import (
	"sort"
	"strconv"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
	"github.com/boshu2/gatekeeper/internal/plan"
)

// AllowanceSource resolves a (category, location) pair to a plan-declared
// exception, if any. *plan.Plan satisfies this via AllowanceFor.
type AllowanceSource interface {
	AllowanceFor(constructCode, location string) (plan.Allowance, bool)
}

// Evaluate runs Phase A then Phase B against content, in that order,
// applying plan allowances to non-hard-block violations only (spec §4.5:
// "the engine honors only exceptions for non-hard-block categories; hard
// blocks cannot be waived"). The returned violation set is deterministic
// and order-stable for identical inputs.
func Evaluate(path string, content []byte, allowances AllowanceSource) ([]Violation, error) {
	var all []Violation

	textualViolations := ScanTextual(path, string(content))
	all = append(all, textualViolations...)

	structuralViolations, err := ScanStructural(path, content)
	if err != nil {
		return nil, gkerrors.Wrap(gkerrors.PhasePolicy, gkerrors.CodePolicyUnparseable,
			"structural analysis failed", err)
	}
	all = append(all, structuralViolations...)

	applyAllowances(path, all, allowances)

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Line != all[j].Line {
			return all[i].Line < all[j].Line
		}
		return all[i].Category < all[j].Category
	})

	return all, nil
}

func applyAllowances(path string, violations []Violation, allowances AllowanceSource) {
	if allowances == nil {
		return
	}
	for i := range violations {
		v := &violations[i]
		if v.Category.HardBlock() {
			continue
		}
		location := locationKey(path, v.Line)
		if _, ok := allowances.AllowanceFor(v.ConstructCode(), location); ok {
			v.Waived = true
		}
	}
}

func locationKey(path string, line int) string {
	return path + ":" + strconv.Itoa(line)
}

// Blocking reports whether violations contains anything that must reject
// the write: every hard-block violation always blocks; every non-hard
// violation blocks unless Waived.
func Blocking(violations []Violation) []Violation {
	var blocking []Violation
	for _, v := range violations {
		if v.Waived {
			continue
		}
		blocking = append(blocking, v)
	}
	return blocking
}
