package compare

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/policyprobe/policyprobe/pkg/engine"
	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

// criticalFieldFragments marks fields whose divergence across environments is
// a release blocker. Matched by lowercase substring against the full dotted
// field path.
var criticalFieldFragments = []string{
	"policy_number",
	"policy_id",
	"premium",
	"coverage",
	"status",
	"sum_insured",
}

// Comparator diffs target and staging step responses field by field after
// normalization. It implements engine.Comparator.
type Comparator struct {
	logger *telemetry.Logger
}

var _ engine.Comparator = (*Comparator)(nil)

// New creates a comparator.
func New(tel *telemetry.Telemetry) *Comparator {
	return &Comparator{
		logger: tel.Logger.NewComponentLogger("comparator"),
	}
}

// Compare produces the per-step field comparison between target and staging
// progress. A step is skipped when either side has no response body to
// compare; skipped steps never contribute differences.
func (c *Comparator) Compare(target, staging engine.EnvironmentProgress) *engine.ComparisonReport {
	report := &engine.ComparisonReport{
		Steps: make([]engine.StepComparison, 0, engine.StepCount),
	}

	for _, step := range engine.StepOrder() {
		sc := c.compareStep(step, target.Outcome(step), staging.Outcome(step))
		report.Steps = append(report.Steps, sc)

		if sc.Skipped {
			continue
		}
		report.Summary.StepsCompared++
		if sc.Match {
			report.Summary.StepsMatched++
		}
		for _, diff := range sc.Differences {
			switch diff.Severity {
			case engine.SeverityCritical:
				report.Summary.Critical++
			case engine.SeverityWarning:
				report.Summary.Warning++
			default:
				report.Summary.Info++
			}
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"steps_compared": report.Summary.StepsCompared,
		"steps_matched":  report.Summary.StepsMatched,
		"critical":       report.Summary.Critical,
	}).Debug("comparison completed")

	return report
}

func (c *Comparator) compareStep(step engine.Step, target, staging *engine.StepOutcome) engine.StepComparison {
	sc := engine.StepComparison{Step: step}

	if target == nil || staging == nil || target.Response == nil || staging.Response == nil {
		sc.Skipped = true
		return sc
	}

	diffs := diffMaps("", Normalize(target.Response), Normalize(staging.Response), 0)
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Field < diffs[j].Field })

	sc.Differences = diffs
	sc.Match = len(diffs) == 0
	return sc
}

func diffMaps(prefix string, target, staging map[string]interface{}, depth int) []engine.FieldDifference {
	var diffs []engine.FieldDifference

	keys := make(map[string]struct{}, len(target)+len(staging))
	for k := range target {
		keys[k] = struct{}{}
	}
	for k := range staging {
		keys[k] = struct{}{}
	}

	for key := range keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		tv, inTarget := target[key]
		sv, inStaging := staging[key]

		switch {
		case !inTarget:
			diffs = append(diffs, engine.FieldDifference{
				Field: path, StagingValue: sv, Severity: engine.SeverityInfo,
			})
		case !inStaging:
			diffs = append(diffs, engine.FieldDifference{
				Field: path, TargetValue: tv, Severity: engine.SeverityInfo,
			})
		default:
			diffs = append(diffs, diffValues(path, tv, sv, depth)...)
		}
	}
	return diffs
}

func diffValues(path string, target, staging interface{}, depth int) []engine.FieldDifference {
	if depth < maxDepth {
		tm, tok := target.(map[string]interface{})
		sm, sok := staging.(map[string]interface{})
		if tok && sok {
			return diffMaps(path, tm, sm, depth+1)
		}

		tl, tok := target.([]interface{})
		sl, sok := staging.([]interface{})
		if tok && sok && len(tl) == len(sl) {
			var diffs []engine.FieldDifference
			for i := range tl {
				diffs = append(diffs, diffValues(fmt.Sprintf("%s[%d]", path, i), tl[i], sl[i], depth+1)...)
			}
			return diffs
		}
	}

	if equalValues(target, staging) {
		return nil
	}
	return []engine.FieldDifference{{
		Field:        path,
		TargetValue:  target,
		StagingValue: staging,
		Severity:     severityFor(path),
	}}
}

// equalValues compares leaf values, treating numerically equal ints and
// floats as equal. JSON decoding turns all numbers into float64, so a value
// that round-tripped through the store must not diff against its in-memory
// counterpart.
func equalValues(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func severityFor(path string) engine.FieldSeverity {
	lower := strings.ToLower(path)
	for _, fragment := range criticalFieldFragments {
		if strings.Contains(lower, fragment) {
			return engine.SeverityCritical
		}
	}
	if strings.Contains(lower, "type") {
		return engine.SeverityWarning
	}
	return engine.SeverityInfo
}
