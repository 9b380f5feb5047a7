// Package machine defines the equipment-based test sections of an
// inspection and evaluates readings against their limits.
package machine

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

// Result status values.
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// Section is one machine test with its acceptance limits. A nil limit is open.
type Section struct {
	Key   string   `json:"key"`
	Name  string   `json:"name"`
	Group string   `json:"group"`
	Unit  string   `json:"unit"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`

	// range of plausible readings used by Simulate
	simLow, simHigh float64
}

func limit(v float64) *float64 { return &v }

var sections = []Section{
	{Key: "side_slip", Name: "Side slip", Group: "Alignment", Unit: "m/km", Min: limit(-5), Max: limit(5), simLow: -7, simHigh: 7},
	{Key: "service_brake_efficiency", Name: "Service brake efficiency", Group: "Brakes", Unit: "%", Min: limit(50), simLow: 40, simHigh: 80},
	{Key: "brake_imbalance", Name: "Brake imbalance", Group: "Brakes", Unit: "%", Max: limit(30), simLow: 0, simHigh: 40},
	{Key: "parking_brake_efficiency", Name: "Parking brake efficiency", Group: "Brakes", Unit: "%", Min: limit(16), simLow: 10, simHigh: 35},
	{Key: "suspension_efficiency", Name: "Suspension efficiency", Group: "Suspension", Unit: "%", Min: limit(40), simLow: 30, simHigh: 80},
	{Key: "co", Name: "Carbon monoxide", Group: "Emissions", Unit: "% vol", Max: limit(4.5), simLow: 0.1, simHigh: 6},
	{Key: "hc", Name: "Hydrocarbons", Group: "Emissions", Unit: "ppm", Max: limit(1200), simLow: 50, simHigh: 1500},
	{Key: "smoke_opacity", Name: "Smoke opacity", Group: "Emissions", Unit: "m-1", Max: limit(2.5), simLow: 0.2, simHigh: 3.5},
	{Key: "headlight_intensity", Name: "Headlight intensity", Group: "Lights", Unit: "cd", Min: limit(10000), simLow: 6000, simHigh: 30000},
	{Key: "speedometer_deviation", Name: "Speedometer deviation", Group: "Speedometer", Unit: "%", Min: limit(-10), Max: limit(10), simLow: -15, simHigh: 15},
}

// Sections returns a copy of the machine test sections.
func Sections() []Section {
	out := make([]Section, len(sections))
	copy(out, sections)
	return out
}

// Lookup finds a section by key or display name.
func Lookup(keyOrName string) (Section, bool) {
	k := strings.TrimSpace(keyOrName)
	for _, s := range sections {
		if s.Key == k || strings.EqualFold(s.Name, k) {
			return s, true
		}
	}
	return Section{}, false
}

// Within reports whether value satisfies the section limits.
func (s Section) Within(value float64) bool {
	if s.Min != nil && value < *s.Min {
		return false
	}
	if s.Max != nil && value > *s.Max {
		return false
	}
	return true
}

// Evaluate grades a reading for the named section.
func Evaluate(keyOrName string, value float64) (store.MachineResult, error) {
	s, ok := Lookup(keyOrName)
	if !ok {
		return store.MachineResult{}, fmt.Errorf("unknown machine test section: %q", keyOrName)
	}
	return s.result(value), nil
}

func (s Section) result(value float64) store.MachineResult {
	status := StatusFail
	if s.Within(value) {
		status = StatusPass
	}
	return store.MachineResult{
		TestName:     s.Name,
		Section:      s.Group,
		Value:        value,
		Unit:         s.Unit,
		Status:       status,
		MinThreshold: s.Min,
		MaxThreshold: s.Max,
	}
}

// Regrade recomputes Status from the stored thresholds, falling back to the
// section limits when a result carries none.
func Regrade(r store.MachineResult) store.MachineResult {
	lo, hi := r.MinThreshold, r.MaxThreshold
	if lo == nil && hi == nil {
		if s, ok := Lookup(r.TestName); ok {
			lo, hi = s.Min, s.Max
		}
	}
	r.Status = StatusPass
	if (lo != nil && r.Value < *lo) || (hi != nil && r.Value > *hi) {
		r.Status = StatusFail
	}
	return r
}

// Outcome reports whether every machine result passed. No results pass.
func Outcome(results []store.MachineResult) bool {
	for _, r := range results {
		if !strings.EqualFold(r.Status, StatusPass) {
			return false
		}
	}
	return true
}

// Failures returns the names of failed tests.
func Failures(results []store.MachineResult) []string {
	var names []string
	for _, r := range results {
		if !strings.EqualFold(r.Status, StatusPass) {
			names = append(names, r.TestName)
		}
	}
	return names
}

// Simulate produces one plausible reading per section, for kiosks running
// without test equipment attached.
func Simulate(r *rand.Rand) []store.MachineResult {
	now := time.Now()
	out := make([]store.MachineResult, 0, len(sections))
	for _, s := range sections {
		v := s.simLow + r.Float64()*(s.simHigh-s.simLow)
		v = math.Round(v*10) / 10
		res := s.result(v)
		res.RecordedAt = now
		out = append(out, res)
	}
	return out
}
