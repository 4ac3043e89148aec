// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intervention

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
)

// messageSections is the deterministic five-section template used when
// the generator fails. Each section is built purely from the pattern's
// evidence.
type messageSections struct {
	Headline   string
	Evidence   string
	Principle  string
	NextAction string
	HelpLine   string
}

func (s messageSections) render() string {
	return strings.Join([]string{s.Headline, s.Evidence, s.Principle, s.NextAction, s.HelpLine}, "\n")
}

// fallbackSections builds the template for a pattern type. Unknown
// types still get all five sections with the raw evidence inlined.
func fallbackSections(pattern datatypes.Pattern) messageSections {
	s := messageSections{
		HelpLine: helpLine(pattern.Severity),
	}
	switch pattern.Type {
	case datatypes.PatternSleepDegradation:
		s.Headline = "⚠ Sleep is degrading."
		s.Evidence = fmt.Sprintf("The last 3 nights: %s %s, all below your %v-%s floor (%s to %s).",
			joinAny(pattern.Evidence["values"]), pattern.Evidence["unit"],
			pattern.Evidence["threshold"], pattern.Evidence["unit"],
			pattern.WindowStart, pattern.WindowEnd)
		s.Principle = "Rule broken: sleep is the keystone habit; three short nights in a row compounds into everything else."
		s.NextAction = "Tonight: screens off at 21:30 and in bed by 22:00. Nothing else matters more today."
	case datatypes.PatternTrainingAbandonment:
		s.Headline = "Training has stalled."
		s.Evidence = fmt.Sprintf("No training on %s. 3 consecutive days.", joinAny(pattern.Evidence["dates"]))
		s.Principle = "Rule broken: training is non-negotiable; three missed days is a pattern, not a rest."
		s.NextAction = "Do the minimum session today. 20 minutes counts. Restart beats restart-planning."
	case datatypes.PatternScoreDecline:
		s.Headline = "Your compliance is sliding."
		s.Evidence = fmt.Sprintf("Scores %s on %s, all under %v.",
			joinAny(pattern.Evidence["scores"]), joinAny(pattern.Evidence["dates"]),
			pattern.Evidence["floor"])
		s.Principle = "Rule broken: three sub-70 days running means the system is failing, not the day."
		s.NextAction = "Pick the single cheapest habit you keep missing and do only that one, today."
	case datatypes.PatternRelapse:
		s.Headline = "🚨 Zero-tolerance habit is failing."
		s.Evidence = fmt.Sprintf("%v failures in the last %v days: %s.",
			pattern.Evidence["failures"], pattern.Evidence["window_records"],
			joinAny(pattern.Evidence["failure_dates"]))
		s.Principle = "Rule broken: this habit has no acceptable failure rate. Frequency this high inside one week is a relapse signature."
		s.NextAction = "Remove the trigger from your environment today and tell one person you trust."
	case datatypes.PatternBoundaryCorrelation:
		s.Headline = "🚨 Boundary failures are dragging down your recovery."
		s.Evidence = fmt.Sprintf("On %.0f%% of boundary-violation days (%s) you also failed sleep or training.",
			toFloat(pattern.Evidence["fraction"])*100, joinAny(pattern.Evidence["violation_dates"]))
		s.Principle = "Rule broken: boundaries protect the habits that protect you. These failures are coupled."
		s.NextAction = "Write down the one boundary that slipped most and the exact sentence you will use to hold it tomorrow."
	case datatypes.PatternGhosting:
		s.Headline = "You've gone quiet."
		s.Evidence = fmt.Sprintf("No check-in for %v days; the last record was %v, on a streak of %v.",
			pattern.Evidence["days_silent"], pattern.Evidence["last_record_date"],
			pattern.Evidence["streak_at_stop"])
		s.Principle = "Rule broken: silence is how streaks actually die, not one bad day."
		s.NextAction = "Do a quick check-in right now. Honest zeros beat no data."
	default:
		s.Headline = fmt.Sprintf("Pattern detected: %s.", pattern.Type)
		s.Evidence = fmt.Sprintf("Evidence: %s (window %s to %s).",
			renderEvidence(pattern.Evidence), pattern.WindowStart, pattern.WindowEnd)
		s.Principle = "A tracked rule was violated across multiple days."
		s.NextAction = "Review the evidence above and fix the most recent failure first."
	}
	return s
}

func helpLine(severity datatypes.Severity) string {
	switch severity {
	case datatypes.SeverityCritical:
		return "This one matters. Reply HELP and a human gets looped in today."
	case datatypes.SeverityHigh:
		return "If something is blocking you, reply HELP. Don't carry it alone."
	default:
		return "Want to talk it through? Reply HELP any time."
	}
}

// joinAny renders a []string / []float64 / []interface{} evidence slice
// as a comma-separated list.
func joinAny(v interface{}) string {
	switch vals := v.(type) {
	case []string:
		return strings.Join(vals, ", ")
	case []float64:
		parts := make([]string, len(vals))
		for i, f := range vals {
			parts[i] = trimFloat(f)
		}
		return strings.Join(parts, ", ")
	case []interface{}:
		parts := make([]string, len(vals))
		for i, x := range vals {
			parts[i] = fmt.Sprintf("%v", x)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat(v interface{}) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return 0
}

func trimFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.1f", f), "0"), ".")
}

// renderEvidence renders an evidence map deterministically (sorted
// keys) for the generic template branch.
func renderEvidence(evidence map[string]interface{}) string {
	keys := make([]string, 0, len(evidence))
	for k := range evidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, evidence[k])
	}
	return strings.Join(parts, " ")
}
