package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseAccount(t *testing.T) {
	cases := []struct {
		in   string
		want Account
		ok   bool
	}{
		{"Nequi", AccountNequi, true},
		{"nequi", AccountNequi, true},
		{"Banco de Bogotá", AccountBancoDeBogota, true},
		{"banco de bogota", AccountBancoDeBogota, true},
		{"Efectivo", AccountCash, true},
		{"Cash", AccountCash, true},
		{"Owed-to-me", AccountOwedToMe, true},
		{"Préstamos", AccountOwedToMe, true},
		{"Receivable-in-transit", AccountInTransit, true},
		{"Por recibir", AccountInTransit, true},
		{"Sin desembolsar", AccountUndisbursed, true},
		{"", AccountNone, false},
		{"Bancolombia", AccountNone, false},
	}
	for _, tc := range cases {
		got, err := ParseAccount(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Fatalf("%q: expected %v, got %v (err=%v)", tc.in, tc.want, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%q: expected validation error, got %v", tc.in, err)
		}
	}
}

func TestAccountPredicates(t *testing.T) {
	if len(RealAccounts()) != 6 {
		t.Fatalf("expected 6 real accounts, got %d", len(RealAccounts()))
	}
	for _, a := range RealAccounts() {
		if !a.IsReal() || !a.CountsTowardLiquidity() || !a.AcceptsFunds() || !a.IsLoanOrigin() {
			t.Fatalf("%v should be a full liquidity account", a)
		}
	}
	for _, a := range []Account{AccountOwedToMe, AccountInTransit, AccountUndisbursed} {
		if a.CountsTowardLiquidity() || a.AcceptsFunds() {
			t.Fatalf("%v must not count toward liquidity", a)
		}
	}
	if !AccountUndisbursed.IsLoanOrigin() || AccountInTransit.IsLoanOrigin() {
		t.Fatalf("loan origin predicate wrong")
	}
	if AccountNone.Valid() || Account(99).Valid() {
		t.Fatalf("out-of-range accounts must be invalid")
	}
}

func TestAccountJSON(t *testing.T) {
	type wrap struct {
		A Account `json:"a"`
	}
	b, err := json.Marshal(wrap{A: AccountCash})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"a":"Efectivo"}` {
		t.Fatalf("got %s", b)
	}
	var w wrap
	if err := json.Unmarshal([]byte(`{"a":"Daviplata"}`), &w); err != nil || w.A != AccountDaviplata {
		t.Fatalf("unmarshal: %v %v", w.A, err)
	}
	if err := json.Unmarshal([]byte(`{"a":"nope"}`), &w); err == nil {
		t.Fatalf("expected error for unknown account")
	}
}
