package client

import (
	"errors"
	"testing"
)

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"object", `{"a":1}`, nil},
		{"not json", `<html>`, ErrInvalidResponse},
		{"empty", ``, ErrInvalidResponse},
		{"array", `[1,2]`, ErrUnexpectedSchema},
		{"string", `"ok"`, ErrUnexpectedSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeObject([]byte(tt.body))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("decodeObject() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("decodeObject() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLookup_TypeMismatchReadsAsAbsent(t *testing.T) {
	m, err := decodeObject([]byte(`{"s":"x","n":42.5,"ns":"7","o":{"k":"v"},"a":[1],"b":true,"nil":null}`))
	if err != nil {
		t.Fatalf("decodeObject() error = %v", err)
	}

	if _, ok := lookupObject(m, "s"); ok {
		t.Error("lookupObject(string) ok = true")
	}
	if _, ok := lookupArray(m, "o"); ok {
		t.Error("lookupArray(object) ok = true")
	}
	if _, ok := lookupString(m, "o"); ok {
		t.Error("lookupString(object) ok = true")
	}
	if _, ok := lookupString(m, "nil"); ok {
		t.Error("lookupString(null) ok = true")
	}
	if _, ok := lookupNumber(m, "s"); ok {
		t.Error("lookupNumber(non-numeric string) ok = true")
	}
	if _, ok := lookupString(m, "missing"); ok {
		t.Error("lookupString(missing) ok = true")
	}

	if v, ok := lookupString(m, "n"); !ok || v != "42.5" {
		t.Errorf("lookupString(number) = %q, %v", v, ok)
	}
	if v, ok := lookupString(m, "b"); !ok || v != "true" {
		t.Errorf("lookupString(bool) = %q, %v", v, ok)
	}
	if v, ok := lookupNumber(m, "ns"); !ok || v != 7 {
		t.Errorf("lookupNumber(numeric string) = %v, %v", v, ok)
	}
	if o, ok := lookupObject(m, "o"); !ok || o["k"] != "v" {
		t.Errorf("lookupObject() = %v, %v", o, ok)
	}
	if a, ok := lookupArray(m, "a"); !ok || len(a) != 1 {
		t.Errorf("lookupArray() = %v, %v", a, ok)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{20: "20", 0.5: "0.5", 12.25: "12.25"}
	for in, want := range tests {
		if got := formatNumber(in); got != want {
			t.Errorf("formatNumber(%v) = %q, want %q", in, got, want)
		}
	}
}
