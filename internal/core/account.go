package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Account identifies one of the fixed, named places money can sit.
// The set is closed: accounts are never created or removed at runtime.
type Account int

const (
	AccountNone Account = iota
	AccountBancoDeBogota
	AccountNequi
	AccountDaviplata
	AccountColpatria
	AccountBolsillo
	AccountCash
	// AccountOwedToMe aggregates outstanding loan principal. Informational only.
	AccountOwedToMe
	// AccountInTransit is the counterparty leg of loan disbursements and
	// repayments. It never carries a balance of its own.
	AccountInTransit
	// AccountUndisbursed marks a loan promised but not funded from a tracked account.
	AccountUndisbursed

	accountSentinel
)

// balanceSlots is the size of a Balances array: every account up to and
// including the owed-to-me aggregate.
const balanceSlots = int(AccountOwedToMe) + 1

var accountNames = [accountSentinel]string{
	AccountNone:          "",
	AccountBancoDeBogota: "Banco de Bogotá",
	AccountNequi:         "Nequi",
	AccountDaviplata:     "Daviplata",
	AccountColpatria:     "Colpatria",
	AccountBolsillo:      "Bolsillo",
	AccountCash:          "Efectivo",
	AccountOwedToMe:      "Préstamos",
	AccountInTransit:     "Por recibir",
	AccountUndisbursed:   "Sin desembolsar",
}

// accountAliases maps accepted input spellings (lowercased) to accounts.
var accountAliases = map[string]Account{
	"cash":                  AccountCash,
	"owed-to-me":            AccountOwedToMe,
	"receivable-in-transit": AccountInTransit,
	"not-yet-disbursed":     AccountUndisbursed,
	"banco de bogota":       AccountBancoDeBogota,
	"prestamos":             AccountOwedToMe,
}

// String returns the display name used in storage and JSON.
func (a Account) String() string {
	if a < 0 || a >= accountSentinel {
		return fmt.Sprintf("Account(%d)", int(a))
	}
	return accountNames[a]
}

// ParseAccount resolves a display name or alias to an Account.
func ParseAccount(s string) (Account, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AccountNone, fmt.Errorf("%w: empty account", ErrValidation)
	}
	for a := AccountBancoDeBogota; a < accountSentinel; a++ {
		if strings.EqualFold(accountNames[a], s) {
			return a, nil
		}
	}
	if a, ok := accountAliases[strings.ToLower(s)]; ok {
		return a, nil
	}
	return AccountNone, fmt.Errorf("%w: unknown account %q", ErrValidation, s)
}

// IsReal reports whether the account holds actual liquidity.
func (a Account) IsReal() bool {
	return a >= AccountBancoDeBogota && a <= AccountCash
}

// CountsTowardLiquidity excludes the owed-to-me aggregate and the markers.
func (a Account) CountsTowardLiquidity() bool {
	return a.IsReal()
}

// AcceptsFunds reports whether income or a transfer may land in the account.
func (a Account) AcceptsFunds() bool {
	return a.IsReal()
}

// IsLoanOrigin reports whether a loan may be disbursed from the account.
func (a Account) IsLoanOrigin() bool {
	return a.IsReal() || a == AccountUndisbursed
}

// Valid reports whether the account is one of the known values.
func (a Account) Valid() bool {
	return a > AccountNone && a < accountSentinel
}

func (a Account) MarshalJSON() ([]byte, error) {
	if a == AccountNone {
		return []byte("null"), nil
	}
	return json.Marshal(a.String())
}

func (a *Account) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = AccountNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAccount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Accounts returns every balance-bearing account in display order.
func Accounts() []Account {
	return []Account{
		AccountBancoDeBogota,
		AccountNequi,
		AccountDaviplata,
		AccountColpatria,
		AccountBolsillo,
		AccountCash,
		AccountOwedToMe,
	}
}

// RealAccounts returns the six liquidity accounts.
func RealAccounts() []Account {
	return Accounts()[:6]
}
