package inspection

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Eskedar21/VIMS-sub000/internal/checklist"
	"github.com/Eskedar21/VIMS-sub000/internal/photo"
	"github.com/Eskedar21/VIMS-sub000/internal/photocache"
	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store    *store.Store
	cache    *photocache.Cache
	recorder *Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.New(":memory:", testLogger())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cache, err := photocache.Open("", testLogger())
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	normalizer := photo.NewNormalizer(nil, photo.Options{MaxDimension: 1280, Quality: 85}, testLogger())
	rec := NewRecorder(st, normalizer, cache, Options{CenterID: "AA-01", PassThreshold: 70}, testLogger())
	return &fixture{store: st, cache: cache, recorder: rec}
}

func kiosk(plate, owner string) KioskInput {
	in := KioskInput{Vehicle: KioskVehicle{Plate: plate, Make: "Toyota", Model: "Hilux"}}
	in.Vehicle.Owner.Name = owner
	return in
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return photo.FormatDataURL("image/png", buf.Bytes())
}

func TestSaveAppliesDefaults(t *testing.T) {
	f := newFixture(t)

	saved, err := f.recorder.Save(context.Background(), kiosk("AA-12345", "Abebe Kebede"))
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := f.recorder.Get(saved.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Status != store.StatusPending {
		t.Errorf("Status = %q, want %q", got.Status, store.StatusPending)
	}
	if got.SyncStatus != store.SyncPending {
		t.Errorf("SyncStatus = %q, want %q", got.SyncStatus, store.SyncPending)
	}
	if !strings.HasPrefix(got.ID, "INS-") {
		t.Errorf("ID = %q, want INS- prefix", got.ID)
	}
	if got.CenterID != "AA-01" {
		t.Errorf("CenterID = %q, want default AA-01", got.CenterID)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should default to now")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	f := newFixture(t)

	in := kiosk(" aa-12345 ", "Abebe Kebede")
	in.Vehicle.VIN = "jtdbr32e720012345"
	in.Vehicle.Owner.Phone = "+251911000000"
	in.Status = "passed"
	in.MachineResults = []MachineInput{
		{TestName: "Service brake efficiency", Value: 62},
		{TestName: "Brake imbalance", Value: 35},
		{TestName: "Custom gauge", Value: 1, Unit: "x", Status: "PASS"},
	}
	in.VisualResults = []VisualInput{
		{ItemName: "Headlights", Status: "Pass"},
		{ItemName: "Windshield", Status: "fail", Severity: "Minor", DefectNote: "chip"},
	}

	saved, err := f.recorder.Save(context.Background(), in)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	got, err := f.recorder.Get(saved.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	if got.Vehicle.Plate != "AA-12345" || got.Vehicle.VIN != "JTDBR32E720012345" {
		t.Errorf("vehicle = %+v", got.Vehicle)
	}
	if got.Vehicle.OwnerName != "Abebe Kebede" || got.Vehicle.OwnerPhone != "+251911000000" {
		t.Errorf("owner = %q / %q", got.Vehicle.OwnerName, got.Vehicle.OwnerPhone)
	}
	if got.Status != store.StatusPassed {
		t.Errorf("Status = %q, want Passed", got.Status)
	}

	if len(got.MachineResults) != 3 {
		t.Fatalf("MachineResults = %d, want 3", len(got.MachineResults))
	}
	byName := make(map[string]store.MachineResult)
	for _, m := range got.MachineResults {
		byName[m.TestName] = m
	}
	if m := byName["Service brake efficiency"]; m.Status != "pass" || m.Unit != "%" || m.Section != "Brakes" || m.MinThreshold == nil {
		t.Errorf("brake efficiency not graded from section limits: %+v", m)
	}
	if m := byName["Brake imbalance"]; m.Status != "fail" {
		t.Errorf("brake imbalance status = %q, want fail", m.Status)
	}
	if m := byName["Custom gauge"]; m.Status != "pass" {
		t.Errorf("explicit status should be kept lower-cased, got %q", m.Status)
	}

	if len(got.VisualResults) != 2 {
		t.Fatalf("VisualResults = %d, want 2", len(got.VisualResults))
	}
	for _, v := range got.VisualResults {
		if v.ItemName == "Windshield" && (v.Category != checklist.ZoneBody || v.Severity != "minor") {
			t.Errorf("windshield result = %+v", v)
		}
	}
}

func TestSaveGeneratesUniqueIDs(t *testing.T) {
	f := newFixture(t)

	seen := make(map[string]bool)
	for i := 0; i < 25; i++ {
		saved, err := f.recorder.Save(context.Background(), kiosk("AA-12345", "Owner"))
		if err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		if seen[saved.ID] {
			t.Fatalf("duplicate ID %s", saved.ID)
		}
		seen[saved.ID] = true
	}

	if got := f.recorder.List(store.InspectionFilter{}); len(got) != 25 {
		t.Errorf("List() = %d inspections, want 25", len(got))
	}
}

func TestResaveReplacesResults(t *testing.T) {
	f := newFixture(t)

	in := kiosk("AA-12345", "Owner")
	in.ID = "INS-resave"
	in.MachineResults = []MachineInput{
		{TestName: "Service brake efficiency", Value: 62},
		{TestName: "Brake imbalance", Value: 12},
	}
	in.VisualResults = []VisualInput{{ItemName: "Horn", Status: "pass"}}

	for i := 0; i < 3; i++ {
		if _, err := f.recorder.Save(context.Background(), in); err != nil {
			t.Fatalf("Save() #%d failed: %v", i+1, err)
		}
	}

	got, err := f.recorder.Get("INS-resave")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.MachineResults) != 2 {
		t.Errorf("machine results = %d, want 2", len(got.MachineResults))
	}
	if len(got.VisualResults) != 1 {
		t.Errorf("visual results = %d, want 1", len(got.VisualResults))
	}
}

func TestSavePhotos(t *testing.T) {
	f := newFixture(t)

	in := kiosk("AA-12345", "Owner")
	in.Photos = []PhotoInput{{Type: "registration", Data: pngDataURL(t), Filename: "front.png"}}

	saved, err := f.recorder.Save(context.Background(), in)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := f.recorder.Get(saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Photos) != 1 {
		t.Fatalf("Photos = %d, want 1", len(got.Photos))
	}
	p := got.Photos[0]
	if !strings.HasPrefix(p.Data, "data:image/png;base64,") || p.Filename != "front.png" || p.Size == 0 {
		t.Errorf("photo = %+v", p)
	}

	bundle, err := f.cache.Get(saved.ID)
	if err != nil {
		t.Fatalf("photo bundle not cached: %v", err)
	}
	if bundle.Plate != "AA-12345" || len(bundle.Photos) != 1 {
		t.Errorf("bundle = %+v", bundle)
	}
}

func TestSaveUnsupportedPhoto(t *testing.T) {
	f := newFixture(t)

	in := kiosk("AA-12345", "Owner")
	in.Photos = []PhotoInput{{Type: "registration"}}

	_, err := f.recorder.Save(context.Background(), in)
	if !errors.Is(err, photo.ErrUnsupportedSource) {
		t.Fatalf("expected ErrUnsupportedSource, got %v", err)
	}
	if got := f.recorder.List(store.InspectionFilter{}); len(got) != 0 {
		t.Errorf("nothing should be stored, got %d", len(got))
	}
}

func TestSaveLegacyInput(t *testing.T) {
	f := newFixture(t)

	payload := `{
		"vehicle": {"plateNumber": "or-98765", "chassisNumber": "WVWZZZ1JZXW000777", "ownerName": "Almaz Tesfaye"},
		"center": "OR-02",
		"machineTests": [{"name": "Smoke opacity", "value": 3.1, "passed": false}, {"name": "Hydrocarbons", "value": 300}],
		"visualChecks": [{"item": "Horn", "result": "pass"}],
		"photos": {"registration": "` + pngDataURL(t) + `"}
	}`

	in, err := DecodeInput([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeInput() failed: %v", err)
	}
	if _, ok := in.(*LegacyInput); !ok {
		t.Fatalf("expected *LegacyInput, got %T", in)
	}

	saved, err := f.recorder.Save(context.Background(), in)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	got, err := f.recorder.Get(saved.ID)
	if err != nil {
		t.Fatal(err)
	}

	if got.Vehicle.Plate != "OR-98765" || got.Vehicle.VIN != "WVWZZZ1JZXW000777" || got.Vehicle.OwnerName != "Almaz Tesfaye" {
		t.Errorf("vehicle = %+v", got.Vehicle)
	}
	if got.CenterID != "OR-02" {
		t.Errorf("CenterID = %q", got.CenterID)
	}
	if len(got.MachineResults) != 2 || len(got.VisualResults) != 1 || len(got.Photos) != 1 {
		t.Fatalf("sub-records = %d/%d/%d", len(got.MachineResults), len(got.VisualResults), len(got.Photos))
	}
	for _, m := range got.MachineResults {
		want := "pass"
		if m.TestName == "Smoke opacity" {
			want = "fail"
		}
		if m.Status != want {
			t.Errorf("%s status = %q, want %q", m.TestName, m.Status, want)
		}
	}
	if got.VisualResults[0].Category != checklist.ZoneInterior {
		t.Errorf("horn category = %q", got.VisualResults[0].Category)
	}
}

func TestLegacyPhotoUnsupported(t *testing.T) {
	f := newFixture(t)

	in := LegacyInput{}
	in.Vehicle.PlateNumber = "AA-1234"
	in.Vehicle.OwnerName = "Owner"
	in.Photos = map[string]string{"registration": "blob:kiosk/1234"}

	if _, err := f.recorder.Save(context.Background(), in); !errors.Is(err, photo.ErrUnsupportedSource) {
		t.Fatalf("expected ErrUnsupportedSource, got %v", err)
	}
}

func TestDecodeInput(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{"kiosk", `{"vehicle": {"plate": "AA-1234"}}`, "kiosk", false},
		{"legacy by field", `{"vehicle": {"ownerName": "X"}}`, "legacy", false},
		{"explicit legacy", `{"format": "legacy", "vehicle": {}}`, "legacy", false},
		{"explicit kiosk wins", `{"format": "kiosk", "vehicle": {"plateNumber": "AA-1"}}`, "kiosk", false},
		{"empty object", `{}`, "kiosk", false},
		{"unknown format", `{"format": "v3"}`, "", true},
		{"invalid json", `{"vehicle":`, "", true},
		{"wrong type", `{"vehicle": {"plate": 12}}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := DecodeInput([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeInput() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			var got string
			switch in.(type) {
			case *KioskInput:
				got = "kiosk"
			case *LegacyInput:
				got = "legacy"
			}
			if got != tt.want {
				t.Errorf("variant = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() KioskInput {
		in := kiosk("AA-12345", "Abebe Kebede")
		in.Vehicle.VIN = "JTDBR32E720012345"
		in.Vehicle.Year = 2015
		return in
	}

	tests := []struct {
		name   string
		mutate func(*KioskInput)
		field  string
	}{
		{"valid", func(in *KioskInput) {}, ""},
		{"lowercase plate is normalized", func(in *KioskInput) { in.Vehicle.Plate = "aa-12345" }, ""},
		{"missing plate", func(in *KioskInput) { in.Vehicle.Plate = "" }, "vehicle.plate"},
		{"malformed plate", func(in *KioskInput) { in.Vehicle.Plate = "AA12345" }, "vehicle.plate"},
		{"plate too long", func(in *KioskInput) { in.Vehicle.Plate = "ABCD-12345" }, "vehicle.plate"},
		{"vin with O", func(in *KioskInput) { in.Vehicle.VIN = "JTDBR32E72001234O" }, "vehicle.vin"},
		{"vin short", func(in *KioskInput) { in.Vehicle.VIN = "JTDBR32E" }, "vehicle.vin"},
		{"year", func(in *KioskInput) { in.Vehicle.Year = 1850 }, "vehicle.year"},
		{"owner", func(in *KioskInput) { in.Vehicle.Owner.Name = " " }, "vehicle.owner.name"},
		{"status", func(in *KioskInput) { in.Status = "Deleted" }, "status"},
		{"machine status", func(in *KioskInput) {
			in.MachineResults = []MachineInput{{TestName: "x", Status: "maybe"}}
		}, "machineResults[0].status"},
		{"visual status", func(in *KioskInput) {
			in.VisualResults = []VisualInput{{ItemName: "Horn", Status: "ok"}}
		}, "visualResults[0].status"},
		{"visual severity", func(in *KioskInput) {
			in.VisualResults = []VisualInput{{ItemName: "Horn", Status: "fail", Severity: "awful"}}
		}, "visualResults[0].severity"},
		{"photo type", func(in *KioskInput) {
			in.Photos = []PhotoInput{{Type: "selfie", URL: "https://example.com/a.jpg"}}
		}, "photos[0].type"},
		{"photo source", func(in *KioskInput) {
			in.Photos = []PhotoInput{{Type: "visual", URL: "https://example.com/a.jpg", Path: "a.jpg"}}
		}, "photos[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			err := Validate(in)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("expected error on %s, got %v", tt.field, verr.Fields)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "second", "a": "first"}}
	if got := err.Error(); got != "validation failed: a: first; b: second" {
		t.Errorf("Error() = %q", got)
	}
}

func TestReadPathsReturnEmptyOnFailure(t *testing.T) {
	f := newFixture(t)
	f.store.Close()

	if got := f.recorder.List(store.InspectionFilter{}); got == nil || len(got) != 0 {
		t.Errorf("List() = %v, want empty slice", got)
	}
	if got := f.recorder.Search("123"); got == nil || len(got) != 0 {
		t.Errorf("Search() = %v, want empty slice", got)
	}
	if got := f.recorder.Pending(); got == nil || len(got) != 0 {
		t.Errorf("Pending() = %v, want empty slice", got)
	}
}

func TestSearchClassification(t *testing.T) {
	f := newFixture(t)

	a := kiosk("AA-12345", "Kebede Alemu")
	b := kiosk("OR-55555", "Almaz 3rd")
	for _, in := range []KioskInput{a, b} {
		if _, err := f.recorder.Save(context.Background(), in); err != nil {
			t.Fatal(err)
		}
	}

	// "3" matches the plate AA-12345 only; the owner name containing 3 is ignored
	got := f.recorder.Search("3")
	if len(got) != 1 || got[0].Vehicle.Plate != "AA-12345" {
		t.Errorf("Search(3) = %+v", got)
	}
	got = f.recorder.Search("almaz")
	if len(got) != 1 || got[0].Vehicle.Plate != "OR-55555" {
		t.Errorf("Search(almaz) = %+v", got)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)

	saved, err := f.recorder.Save(context.Background(), kiosk("AA-12345", "Owner"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.recorder.Delete(saved.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if got := f.recorder.List(store.InspectionFilter{}); len(got) != 0 {
		t.Errorf("deleted inspection still listed")
	}
	if err := f.recorder.Delete("INS-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func allVisual(status string) []VisualInput {
	var out []VisualInput
	for _, it := range checklist.Items() {
		out = append(out, VisualInput{ItemName: it.Name, Status: status})
	}
	return out
}

func TestFinalizePassed(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	f.recorder.now = func() time.Time { return fixed }

	in := kiosk("AA-12345", "Owner")
	in.MachineResults = []MachineInput{{TestName: "Service brake efficiency", Value: 70}}
	in.VisualResults = allVisual("pass")
	saved, err := f.recorder.Save(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.UpdateSyncStatus(saved.ID, store.SyncSynced, ""); err != nil {
		t.Fatal(err)
	}

	v, err := f.recorder.Finalize(saved.ID)
	if err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	if v.Status != store.StatusPassed || !v.MachinePassed || !v.Visual.Passed {
		t.Errorf("verdict = %+v", v)
	}
	if !strings.HasPrefix(v.Certificate.Number, "CERT-20260601-") {
		t.Errorf("certificate number = %q", v.Certificate.Number)
	}
	if !v.Certificate.ExpiresAt.Equal(fixed.Add(365 * 24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v", v.Certificate.ExpiresAt)
	}

	got, err := f.recorder.Get(saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusPassed || got.Certificate.Number != v.Certificate.Number {
		t.Errorf("stored outcome = %s / %s", got.Status, got.Certificate.Number)
	}
	if got.SyncStatus != store.SyncPending {
		t.Errorf("finalize should requeue sync, got %s", got.SyncStatus)
	}
	if got.VisualScore != 87 || got.VisualMaxScore != 87 {
		t.Errorf("visual score = %d/%d", got.VisualScore, got.VisualMaxScore)
	}
}

func TestFinalizeFailed(t *testing.T) {
	f := newFixture(t)

	in := kiosk("AA-12345", "Owner")
	in.MachineResults = []MachineInput{{TestName: "Brake imbalance", Value: 45}}
	in.VisualResults = allVisual("pass")
	saved, err := f.recorder.Save(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	v, err := f.recorder.Finalize(saved.ID)
	if err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	if v.Status != store.StatusFailed || v.MachinePassed {
		t.Errorf("verdict = %+v", v)
	}
	if len(v.MachineFailures) != 1 || v.MachineFailures[0] != "Brake imbalance" {
		t.Errorf("MachineFailures = %v", v.MachineFailures)
	}
	if v.Certificate.Number != "" {
		t.Error("failed inspection should not get a certificate")
	}
}

func TestFinalizeIncomplete(t *testing.T) {
	tests := []struct {
		name    string
		machine []MachineInput
		visual  []VisualInput
		want    int
	}{
		{name: "nothing recorded", want: 2},
		{name: "no machine results", visual: allVisual("pass"), want: 1},
		{
			name:    "checklist partly recorded",
			machine: []MachineInput{{TestName: "Service brake efficiency", Value: 70}},
			visual:  []VisualInput{{ItemName: "Horn", Status: "pass"}},
			want:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := kiosk("AA-12345", "Owner")
			in.MachineResults = tt.machine
			in.VisualResults = tt.visual
			saved, err := f.recorder.Save(context.Background(), in)
			if err != nil {
				t.Fatal(err)
			}

			v, err := f.recorder.Finalize(saved.ID)
			if err != nil {
				t.Fatalf("Finalize() failed: %v", err)
			}
			if v.Status != store.StatusFailed {
				t.Errorf("Status = %q, want %q", v.Status, store.StatusFailed)
			}
			if len(v.Incomplete) != tt.want {
				t.Errorf("Incomplete = %v, want %d reasons", v.Incomplete, tt.want)
			}
			if v.Certificate.Number != "" {
				t.Errorf("incomplete inspection got certificate %q", v.Certificate.Number)
			}
		})
	}
}

func TestFinalizeMissing(t *testing.T) {
	f := newFixture(t)

	if _, err := f.recorder.Finalize("INS-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	saved, err := f.recorder.Save(context.Background(), kiosk("AA-12345", "Owner"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.recorder.Delete(saved.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.recorder.Finalize(saved.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted inspection, got %v", err)
	}
}

func TestNewInspectionID(t *testing.T) {
	now := time.UnixMilli(1760000000000)
	id := NewInspectionID(now)
	if !strings.HasPrefix(id, "INS-1760000000000-") || len(id) != len("INS-1760000000000-")+8 {
		t.Errorf("NewInspectionID() = %q", id)
	}
	if NewInspectionID(now) == id {
		t.Error("IDs with the same timestamp should differ")
	}
}
