// Package checklist holds the visual inspection checklist and scores
// recorded results against it.
package checklist

import "strings"

// Zone names, in the order an inspector walks the vehicle.
const (
	ZoneLighting   = "Lighting"
	ZoneBrakes     = "Brakes"
	ZoneSteering   = "Steering & Suspension"
	ZoneTires      = "Tires & Wheels"
	ZoneBody       = "Body & Chassis"
	ZoneInterior   = "Interior & Safety"
	ZoneEngine     = "Engine & Emissions"
	zoneUnlisted   = "Other"
	unlistedPoints = 1
)

// Result status values recorded against an item.
const (
	StatusPass = "pass"
	StatusFail = "fail"
	StatusNA   = "na"
)

// Severity values for failed items.
const (
	SeverityMinor    = "minor"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

// Item is one line of the checklist.
type Item struct {
	Name     string `json:"name"`
	Zone     string `json:"zone"`
	Points   int    `json:"points"`
	Critical bool   `json:"critical"`
}

var items = []Item{
	{"Headlights", ZoneLighting, 3, true},
	{"Tail lights", ZoneLighting, 2, false},
	{"Brake lights", ZoneLighting, 3, true},
	{"Turn signals", ZoneLighting, 2, false},
	{"License plate light", ZoneLighting, 1, false},

	{"Brake pedal", ZoneBrakes, 5, true},
	{"Brake fluid level", ZoneBrakes, 2, false},
	{"Brake lines and hoses", ZoneBrakes, 5, true},
	{"Parking brake lever", ZoneBrakes, 3, false},

	{"Steering play", ZoneSteering, 5, true},
	{"Tie rods and ball joints", ZoneSteering, 5, true},
	{"Shock absorbers", ZoneSteering, 3, false},
	{"Springs", ZoneSteering, 2, false},

	{"Tread depth", ZoneTires, 5, true},
	{"Tire sidewalls", ZoneTires, 3, false},
	{"Wheel nuts", ZoneTires, 3, false},
	{"Spare tire", ZoneTires, 1, false},

	{"Windshield", ZoneBody, 3, false},
	{"Mirrors", ZoneBody, 2, false},
	{"Doors and latches", ZoneBody, 2, false},
	{"Bumpers", ZoneBody, 1, false},
	{"Chassis corrosion", ZoneBody, 5, true},

	{"Seat belts", ZoneInterior, 5, true},
	{"Horn", ZoneInterior, 2, false},
	{"Wipers and washers", ZoneInterior, 2, false},
	{"Safety kit", ZoneInterior, 1, false},

	{"Exhaust system", ZoneEngine, 3, false},
	{"Fluid leaks", ZoneEngine, 3, false},
	{"Engine mounts", ZoneEngine, 2, false},
	{"Visible smoke", ZoneEngine, 3, false},
}

// Items returns a copy of the checklist.
func Items() []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// Zones returns zone names in checklist order.
func Zones() []string {
	var zones []string
	seen := make(map[string]bool)
	for _, it := range items {
		if !seen[it.Zone] {
			seen[it.Zone] = true
			zones = append(zones, it.Zone)
		}
	}
	return zones
}

// Lookup finds an item by name, ignoring case and surrounding space.
func Lookup(name string) (Item, bool) {
	name = strings.TrimSpace(name)
	for _, it := range items {
		if strings.EqualFold(it.Name, name) {
			return it, true
		}
	}
	return Item{}, false
}

// ValidStatus reports whether s is a known result status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPass, StatusFail, StatusNA:
		return true
	}
	return false
}

// ValidSeverity reports whether s is a known severity; empty is allowed.
func ValidSeverity(s string) bool {
	switch s {
	case "", SeverityMinor, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}
