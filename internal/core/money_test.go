package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	for _, c := range []int64{0, -100} {
		if err := (Money{Cents: c}).Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("%d: expected validation error, got %v", c, err)
		}
	}
}

func TestMoneyFormat(t *testing.T) {
	cases := []struct {
		in   Money
		want string
	}{
		{Money{}, "$ 0"},
		{Pesos(100), "$ 100"},
		{Pesos(1000), "$ 1.000"},
		{Pesos(1234567), "$ 1.234.567"},
		{Money{Cents: 123456}, "$ 1.234,56"},
		{Money{Cents: 5}, "$ 0,05"},
		{Pesos(-30000), "-$ 30.000"},
	}
	for _, tc := range cases {
		if got := tc.in.Format(); got != tc.want {
			t.Errorf("Format(%d) = %q, want %q", tc.in.Cents, got, tc.want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(Money{Cents: 150050})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "1500.5" {
		t.Fatalf("got %s", b)
	}

	var m Money
	for in, want := range map[string]int64{`100000`: 10000000, `"12,5"`: 1250, `0.015`: 2} {
		if err := json.Unmarshal([]byte(in), &m); err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if m.Cents != want {
			t.Fatalf("%s: got %d, want %d", in, m.Cents, want)
		}
	}
	for _, in := range []string{`"abc"`, `1e30`, `-99999999999999999999999`, `"46116860184273880"`} {
		if err := json.Unmarshal([]byte(in), &m); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%s: expected invalid amount, got %v", in, err)
		}
	}
}
