package inspection

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Eskedar21/VIMS-sub000/internal/checklist"
	"github.com/Eskedar21/VIMS-sub000/internal/machine"
	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

var (
	platePattern = regexp.MustCompile(`^[A-Z0-9]{1,3}-[A-Z0-9]{3,8}$`)
	vinPattern   = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)
)

var photoTypes = map[string]bool{
	"registration": true,
	"visual":       true,
	"machine":      true,
}

// ValidationError maps field paths to messages.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// Validate runs the registration form checks against in. It returns a
// *ValidationError listing every offending field, or nil.
func Validate(in Input) error {
	return validateDraft(in.normalize(time.Now(), Defaults{}), time.Now())
}

func validateDraft(d *Draft, now time.Time) error {
	verr := &ValidationError{}
	insp := d.Inspection
	v := insp.Vehicle

	switch {
	case v.Plate == "":
		verr.add("vehicle.plate", "plate number is required")
	case !platePattern.MatchString(v.Plate):
		verr.add("vehicle.plate", "plate number must look like AA-12345")
	}

	if v.VIN != "" && !vinPattern.MatchString(v.VIN) {
		verr.add("vehicle.vin", "VIN must be 17 characters and cannot contain I, O or Q")
	}

	if v.Year != 0 && (v.Year < 1900 || v.Year > now.Year()+1) {
		verr.add("vehicle.year", fmt.Sprintf("year must be between 1900 and %d", now.Year()+1))
	}

	if v.OwnerName == "" {
		verr.add("vehicle.owner.name", "owner name is required")
	}

	switch insp.Status {
	case store.StatusPending, store.StatusPassed, store.StatusFailed:
	default:
		verr.add("status", fmt.Sprintf("unknown status %q", insp.Status))
	}

	for i, m := range insp.MachineResults {
		field := fmt.Sprintf("machineResults[%d]", i)
		if m.TestName == "" {
			verr.add(field+".testName", "test name is required")
		}
		if m.Status != machine.StatusPass && m.Status != machine.StatusFail {
			verr.add(field+".status", fmt.Sprintf("status must be pass or fail, got %q", m.Status))
		}
	}

	for i, r := range insp.VisualResults {
		field := fmt.Sprintf("visualResults[%d]", i)
		if r.ItemName == "" {
			verr.add(field+".itemName", "item name is required")
		}
		if !checklist.ValidStatus(r.Status) {
			verr.add(field+".status", fmt.Sprintf("status must be pass, fail or na, got %q", r.Status))
		}
		if !checklist.ValidSeverity(r.Severity) {
			verr.add(field+".severity", fmt.Sprintf("unknown severity %q", r.Severity))
		}
	}

	for i, p := range d.Photos {
		field := fmt.Sprintf("photos[%d]", i)
		if t := photoType(p.Type); !photoTypes[t] {
			verr.add(field+".type", fmt.Sprintf("unknown photo type %q", p.Type))
		}
		if _, err := p.Source(); err != nil {
			verr.add(field, err.Error())
		}
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// photoType defaults an empty type to registration.
func photoType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return "registration"
	}
	return t
}
