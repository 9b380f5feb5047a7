package checklist

import (
	"testing"

	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

func TestChecklistShape(t *testing.T) {
	all := Items()
	if len(all) != 30 {
		t.Fatalf("expected 30 checklist items, got %d", len(all))
	}

	zones := Zones()
	want := []string{ZoneLighting, ZoneBrakes, ZoneSteering, ZoneTires, ZoneBody, ZoneInterior, ZoneEngine}
	if len(zones) != len(want) {
		t.Fatalf("zones = %v", zones)
	}
	for i := range want {
		if zones[i] != want[i] {
			t.Errorf("zone %d = %q, want %q", i, zones[i], want[i])
		}
	}

	names := make(map[string]bool)
	for _, it := range all {
		if it.Points <= 0 {
			t.Errorf("item %q has no points", it.Name)
		}
		if names[it.Name] {
			t.Errorf("duplicate item %q", it.Name)
		}
		names[it.Name] = true
	}

	// Items returns a copy
	all[0].Points = 999
	if Items()[0].Points == 999 {
		t.Error("Items() should not expose the package slice")
	}
}

func TestLookup(t *testing.T) {
	it, ok := Lookup("  seat BELTS ")
	if !ok || it.Name != "Seat belts" || !it.Critical {
		t.Errorf("Lookup() = %+v, %v", it, ok)
	}
	if _, ok := Lookup("Flux capacitor"); ok {
		t.Error("unexpected match for unknown item")
	}
}

func TestValidators(t *testing.T) {
	for _, s := range []string{"pass", "fail", "na"} {
		if !ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = false", s)
		}
	}
	if ValidStatus("ok") {
		t.Error("ValidStatus(ok) = true")
	}
	if !ValidSeverity("") || !ValidSeverity("major") || ValidSeverity("severe") {
		t.Error("ValidSeverity mismatch")
	}
}

func results(status string) []store.VisualResult {
	var out []store.VisualResult
	for _, it := range items {
		out = append(out, store.VisualResult{ItemName: it.Name, Category: it.Zone, Status: status})
	}
	return out
}

func TestScoreAllPass(t *testing.T) {
	res := Score(results(StatusPass), 70)

	if !res.Passed {
		t.Error("expected pass")
	}
	if res.Percentage != 100 {
		t.Errorf("Percentage = %v, want 100", res.Percentage)
	}
	if res.Points != 87 || res.MaxPoints != 87 {
		t.Errorf("points = %d/%d, want 87/87", res.Points, res.MaxPoints)
	}
	if len(res.Missing) != 0 {
		t.Errorf("Missing = %v", res.Missing)
	}
	if len(res.Zones) != 7 {
		t.Errorf("zones = %d, want 7", len(res.Zones))
	}
}

func TestScoreCriticalFailure(t *testing.T) {
	rs := results(StatusPass)
	for i := range rs {
		if rs[i].ItemName == "Brake pedal" {
			rs[i].Status = StatusFail
		}
	}

	res := Score(rs, 70)
	if res.Passed {
		t.Error("critical failure should fail the inspection")
	}
	if len(res.CriticalFailures) != 1 || res.CriticalFailures[0] != "Brake pedal" {
		t.Errorf("CriticalFailures = %v", res.CriticalFailures)
	}
	// 82 of 87 points is above the threshold on its own
	if res.Points != 82 {
		t.Errorf("Points = %d, want 82", res.Points)
	}
}

func TestScoreSeverityCritical(t *testing.T) {
	rs := []store.VisualResult{
		{ItemName: "Bumpers", Status: StatusFail, Severity: SeverityCritical},
		{ItemName: "Horn", Status: StatusPass},
	}
	res := Score(rs, 0)
	if res.Passed || len(res.CriticalFailures) != 1 {
		t.Errorf("expected critical-severity failure, got %+v", res)
	}
}

func TestScoreThreshold(t *testing.T) {
	rs := []store.VisualResult{
		{ItemName: "Mirrors", Status: StatusPass},    // 2
		{ItemName: "Windshield", Status: StatusFail}, // 3
		{ItemName: "Spare tire", Status: StatusNA},
	}

	res := Score(rs, 70)
	if res.Percentage != 40 {
		t.Errorf("Percentage = %v, want 40", res.Percentage)
	}
	if res.Passed {
		t.Error("40% should fail a 70% threshold")
	}
	if !Score(rs, 40).Passed {
		t.Error("40% should pass a 40% threshold")
	}

	var body, tires ZoneScore
	for _, z := range res.Zones {
		switch z.Zone {
		case ZoneBody:
			body = z
		case ZoneTires:
			tires = z
		}
	}
	if body.Passed != 1 || body.Failed != 1 || body.MaxPoints != 5 {
		t.Errorf("body zone = %+v", body)
	}
	if tires.NA != 1 || tires.MaxPoints != 0 {
		t.Errorf("tires zone = %+v", tires)
	}
}

func TestScoreEmptyAndUnlisted(t *testing.T) {
	res := Score(nil, 70)
	if !res.Passed || res.Percentage != 100 {
		t.Errorf("empty results = %+v", res)
	}
	if len(res.Missing) != 30 {
		t.Errorf("Missing = %d, want 30", len(res.Missing))
	}

	res = Score([]store.VisualResult{{ItemName: "Roof rack", Status: StatusFail}}, 70)
	last := res.Zones[len(res.Zones)-1]
	if last.Zone != "Other" || last.Failed != 1 || last.MaxPoints != 1 {
		t.Errorf("unlisted zone = %+v", last)
	}
	if res.Passed {
		t.Error("0% should fail")
	}
}
