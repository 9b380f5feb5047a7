package checklist

import (
	"strings"

	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

// ZoneScore summarises one zone.
type ZoneScore struct {
	Zone      string `json:"zone"`
	Passed    int    `json:"passed"`
	Failed    int    `json:"failed"`
	NA        int    `json:"na"`
	Points    int    `json:"points"`
	MaxPoints int    `json:"max_points"`
}

// Result is the outcome of scoring a set of visual results.
type Result struct {
	Zones            []ZoneScore `json:"zones"`
	Points           int         `json:"points"`
	MaxPoints        int         `json:"max_points"`
	Percentage       float64     `json:"percentage"`
	CriticalFailures []string    `json:"critical_failures,omitempty"`
	Missing          []string    `json:"missing,omitempty"`
	Passed           bool        `json:"passed"`
}

// Score rates visual results against the checklist. Items marked "na" are
// left out of the percentage. The inspection fails when a critical item
// fails, when any failure is recorded with critical severity, or when the
// percentage is below threshold. With nothing applicable the result passes.
// Results for names not on the checklist count under "Other" at one point.
func Score(results []store.VisualResult, threshold float64) Result {
	zoneIdx := make(map[string]int)
	var res Result
	for _, z := range Zones() {
		zoneIdx[z] = len(res.Zones)
		res.Zones = append(res.Zones, ZoneScore{Zone: z})
	}

	seen := make(map[string]bool)
	for _, r := range results {
		item, ok := Lookup(r.ItemName)
		if !ok {
			item = Item{Name: strings.TrimSpace(r.ItemName), Zone: zoneUnlisted, Points: unlistedPoints}
			if _, exists := zoneIdx[zoneUnlisted]; !exists {
				zoneIdx[zoneUnlisted] = len(res.Zones)
				res.Zones = append(res.Zones, ZoneScore{Zone: zoneUnlisted})
			}
		}
		seen[strings.ToLower(item.Name)] = true
		z := &res.Zones[zoneIdx[item.Zone]]

		switch strings.ToLower(r.Status) {
		case StatusPass:
			z.Passed++
			z.Points += item.Points
			z.MaxPoints += item.Points
		case StatusFail:
			z.Failed++
			z.MaxPoints += item.Points
			if item.Critical || strings.EqualFold(r.Severity, SeverityCritical) {
				res.CriticalFailures = append(res.CriticalFailures, item.Name)
			}
		default:
			z.NA++
		}
	}

	for _, z := range res.Zones {
		res.Points += z.Points
		res.MaxPoints += z.MaxPoints
	}
	for _, it := range items {
		if !seen[strings.ToLower(it.Name)] {
			res.Missing = append(res.Missing, it.Name)
		}
	}

	res.Percentage = 100
	if res.MaxPoints > 0 {
		res.Percentage = float64(res.Points) * 100 / float64(res.MaxPoints)
	}
	res.Passed = len(res.CriticalFailures) == 0 && res.Percentage >= threshold
	return res
}
