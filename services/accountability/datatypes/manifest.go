// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HabitDef describes one habit in the manifest: its key, the question
// asked during check-in, and the rule-relevant flags.
type HabitDef struct {
	Key    HabitKey `yaml:"key" json:"key"`
	Prompt string   `yaml:"prompt" json:"prompt"`

	// Metric marks an item answered with a number instead of yes/no.
	// MetricThreshold derives Completed from the numeric answer.
	Metric          bool    `yaml:"metric" json:"metric"`
	MetricThreshold float64 `yaml:"metric_threshold" json:"metric_threshold"`
	MetricUnit      string  `yaml:"metric_unit" json:"metric_unit"`

	// ZeroTolerance marks the item the relapse rule watches.
	ZeroTolerance bool `yaml:"zero_tolerance" json:"zero_tolerance"`

	// Boundary marks the item whose failures feed the correlation rule.
	Boundary bool `yaml:"boundary" json:"boundary"`
}

// Manifest is the fixed habit set for one mode, in question order.
//
// The key set is constant across records for a given mode. The scorer
// deliberately uses each record's own item-map size as its denominator,
// so records written under an older, smaller manifest still score
// correctly.
type Manifest struct {
	Mode        string     `yaml:"mode" json:"mode"`
	Habits      []HabitDef `yaml:"habits" json:"habits"`
	Reflections []string   `yaml:"reflections" json:"reflections"`
}

// Keys returns the habit keys in question order.
func (m *Manifest) Keys() []HabitKey {
	keys := make([]HabitKey, len(m.Habits))
	for i, h := range m.Habits {
		keys[i] = h.Key
	}
	return keys
}

// Habit returns the definition for key, if present.
func (m *Manifest) Habit(key HabitKey) (HabitDef, bool) {
	for _, h := range m.Habits {
		if h.Key == key {
			return h, true
		}
	}
	return HabitDef{}, false
}

// LoadManifest reads a habit manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read habit manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse habit manifest %s: %w", path, err)
	}
	if len(m.Habits) == 0 {
		return nil, fmt.Errorf("habit manifest %s defines no habits", path)
	}
	seen := make(map[HabitKey]bool, len(m.Habits))
	for _, h := range m.Habits {
		if h.Key == "" {
			return nil, fmt.Errorf("habit manifest %s contains a habit with no key", path)
		}
		if seen[h.Key] {
			return nil, fmt.Errorf("habit manifest %s duplicates key %q", path, h.Key)
		}
		seen[h.Key] = true
	}
	return &m, nil
}

// DefaultManifest returns the built-in standard-mode habit set. Used
// when no manifest file is configured and throughout the test suite.
func DefaultManifest() *Manifest {
	return &Manifest{
		Mode: "standard",
		Habits: []HabitDef{
			{Key: HabitDeepWork, Prompt: "Did you complete your deep work block today?"},
			{Key: HabitTraining, Prompt: "Did you train today?"},
			{Key: HabitSleep, Prompt: "How many hours did you sleep last night?",
				Metric: true, MetricThreshold: 7.0, MetricUnit: "hours"},
			{Key: HabitNutrition, Prompt: "Did you stick to your nutrition plan?"},
			{Key: HabitNoAlcohol, Prompt: "Did you stay alcohol-free today?", ZeroTolerance: true},
			{Key: HabitBoundary, Prompt: "Did you hold your boundaries today?", Boundary: true},
		},
		Reflections: []string{
			"What was the hardest moment today, and how did you handle it?",
			"What is the one thing you will do differently tomorrow?",
		},
	}
}
