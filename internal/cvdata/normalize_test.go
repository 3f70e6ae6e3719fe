package cvdata

import (
	"testing"
)

func TestNormalize_MigratesLegacyKeys(t *testing.T) {
	raw := []byte(`{
		"personalInfo": {"fullName": "Ada Lovelace"},
		"workExperience": [{"company": "Analytical Engines Ltd"}]
	}`)

	data, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	if _, ok := data["personalInfo"]; ok {
		t.Error("legacy key personalInfo should be removed")
	}
	if _, ok := data["workExperience"]; ok {
		t.Error("legacy key workExperience should be removed")
	}

	details, ok := data["personalDetails"].(map[string]any)
	if !ok {
		t.Fatalf("personalDetails missing, got %T", data["personalDetails"])
	}
	if details["fullName"] != "Ada Lovelace" {
		t.Errorf("fullName = %v", details["fullName"])
	}

	experience, ok := data["experience"].([]any)
	if !ok || len(experience) != 1 {
		t.Fatalf("experience missing, got %v", data["experience"])
	}
}

func TestNormalize_CanonicalKeysWin(t *testing.T) {
	raw := []byte(`{
		"personalInfo": {"fullName": "Old Name"},
		"personalDetails": {"fullName": "New Name"}
	}`)

	data, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	details := data["personalDetails"].(map[string]any)
	if details["fullName"] != "New Name" {
		t.Errorf("canonical value should survive migration, got %v", details["fullName"])
	}
}

func TestNormalize_InvalidJSON(t *testing.T) {
	if _, err := Normalize([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed content")
	}
}

func TestFormatDate(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"2020-01-15T00:00:00Z", "Jan 2020"},
		{"2021-06-01", "Jun 2021"},
		{"2019-03", "Mar 2019"},
		{"", ""},
		{"not-a-date", ""},
		{42.0, ""},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := FormatDate(tc.in); got != tc.want {
			t.Errorf("FormatDate(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatDates_FormatsSectionsInPlace(t *testing.T) {
	data := map[string]any{
		"experience": []any{
			map[string]any{
				"company":   "Acme",
				"startDate": "2020-01-02",
				"endDate":   "garbled",
			},
		},
		"certifications": []any{
			map[string]any{"name": "Cert", "date": "2022-11-05"},
		},
	}

	FormatDates(data)

	exp := data["experience"].([]any)[0].(map[string]any)
	if exp["startDate"] != "Jan 2020" {
		t.Errorf("startDate = %v", exp["startDate"])
	}
	if exp["endDate"] != "" {
		t.Errorf("unparseable endDate should become empty, got %v", exp["endDate"])
	}

	cert := data["certifications"].([]any)[0].(map[string]any)
	if cert["date"] != "Nov 2022" {
		t.Errorf("date = %v", cert["date"])
	}
}
