package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/gatekeeper/internal/audit"
	"github.com/boshu2/gatekeeper/internal/plan"
)

// maturityMeasurement is one weighted signal contributing to the overall
// maturity score, the same {result, weight} shape internal/goals uses for
// its own weighted pass/fail/skip scoring — adapted here from running
// external check commands to reading the registry and audit log directly,
// since maturity is read-only and never shells out.
type maturityMeasurement struct {
	Name   string  `json:"name"`
	Result string  `json:"result"` // "pass", "fail", "skip"
	Value  float64 `json:"value"`
	Weight int     `json:"weight"`
}

type maturitySnapshot struct {
	Measurements []maturityMeasurement `json:"measurements"`
	Score        float64               `json:"score"`
}

var maturityCmd = &cobra.Command{
	Use:   "maturity",
	Short: "Read-only coverage and maturity snapshot",
	Long: `Reports a weighted maturity score over the registry and audit log:
approved-plan coverage (plans with at least one successful write citing
them), the preflight pass rate, and the gate-rejection rate. This never
participates in an admission decision — it is diagnostic only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := wirePipeline()
		if err != nil {
			return err
		}

		records, err := p.Audit.ReadAll()
		if err != nil {
			return err
		}

		snapshot := computeMaturitySnapshot(p.Registry.State().PlanIndex, records)
		return printMaturitySnapshot(snapshot)
	},
}

func computeMaturitySnapshot(index map[string]plan.IndexEntry, records []audit.Record) maturitySnapshot {
	exercised := make(map[string]bool)
	var writes, writeFailures, preflightRuns, preflightPasses int
	for _, r := range records {
		if r.Tool != "write_file" {
			continue
		}
		if r.ErrorCode == "" {
			exercised[r.PlanHash] = true
			writes++
		} else {
			writeFailures++
		}
		if success, ok := r.Extra["preflight_success"]; ok {
			preflightRuns++
			if success == "true" {
				preflightPasses++
			}
		}
	}

	approved := 0
	for _, entry := range index {
		if entry.Status == plan.StatusApproved {
			approved++
		}
	}
	covered := 0
	for hash, entry := range index {
		if entry.Status == plan.StatusApproved && exercised[hash] {
			covered++
		}
	}

	measurements := []maturityMeasurement{
		coverageMeasurement("plan_coverage", covered, approved, 3),
		rateMeasurement("preflight_pass_rate", preflightPasses, preflightRuns, 2),
		rejectionMeasurement("write_rejection_rate", writeFailures, writes+writeFailures, 1),
	}

	var weightedScore, weightedTotal float64
	for _, m := range measurements {
		if m.Result == "skip" {
			continue
		}
		weightedTotal += float64(m.Weight)
		weightedScore += m.Value * float64(m.Weight)
	}
	score := 0.0
	if weightedTotal > 0 {
		score = weightedScore / weightedTotal * 100
	}

	return maturitySnapshot{Measurements: measurements, Score: score}
}

func coverageMeasurement(name string, covered, total, weight int) maturityMeasurement {
	if total == 0 {
		return maturityMeasurement{Name: name, Result: "skip", Weight: weight}
	}
	value := float64(covered) / float64(total)
	result := "fail"
	if value == 1 {
		result = "pass"
	}
	return maturityMeasurement{Name: name, Result: result, Value: value, Weight: weight}
}

func rateMeasurement(name string, passing, total, weight int) maturityMeasurement {
	if total == 0 {
		return maturityMeasurement{Name: name, Result: "skip", Weight: weight}
	}
	value := float64(passing) / float64(total)
	result := "fail"
	if value == 1 {
		result = "pass"
	}
	return maturityMeasurement{Name: name, Result: result, Value: value, Weight: weight}
}

func rejectionMeasurement(name string, rejected, total, weight int) maturityMeasurement {
	if total == 0 {
		return maturityMeasurement{Name: name, Result: "skip", Weight: weight}
	}
	// Lower rejection rate is healthier, so the contributed value is the
	// inverse fraction: 1.0 when nothing was rejected.
	value := 1 - float64(rejected)/float64(total)
	result := "fail"
	if rejected == 0 {
		result = "pass"
	}
	return maturityMeasurement{Name: name, Result: result, Value: value, Weight: weight}
}

func printMaturitySnapshot(s maturitySnapshot) error {
	if GetOutput() == "json" || GetOutput() == "jsonl" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	fmt.Printf("maturity score: %.1f\n", s.Score)
	for _, m := range s.Measurements {
		fmt.Printf("  %-24s %-5s value=%.2f weight=%d\n", m.Name, m.Result, m.Value, m.Weight)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(maturityCmd)
}
