package core

import (
	"encoding/json"
	"fmt"
)

// Balances holds one amount per balance-bearing account. The owed-to-me
// slot is derived from loans, the rest from the month's transactions.
type Balances [balanceSlots]Money

// Totals aggregates a month's ledger for presentation and archiving.
type Totals struct {
	Income    Money `json:"income"`
	Expense   Money `json:"expense"`
	Balance   Money `json:"balance"`
	Liquidity Money `json:"liquidity"`
	Lent      Money `json:"lent"`
	// Disbursed and Collected sum the month's loan legs.
	Disbursed Money `json:"disbursed"`
	Collected Money `json:"collected"`
}

// ZeroBalances returns the initial, all-zero balance record.
func ZeroBalances() Balances {
	return Balances{}
}

func (b Balances) Get(a Account) Money {
	if a <= AccountNone || int(a) >= balanceSlots {
		return Money{}
	}
	return b[a]
}

func (b *Balances) credit(a Account, m Money) {
	if a.IsReal() {
		b[a] = b[a].Add(m)
	}
}

// Liquidity sums the real accounts.
func (b Balances) Liquidity() Money {
	var total Money
	for _, a := range RealAccounts() {
		total = total.Add(b[a])
	}
	return total
}

// Project replays the month's transactions over zeroed real accounts and
// seeds owed-to-me with the pending principal of active loans. Legs that
// touch the in-transit marker only move the real side.
func Project(txs []Transaction, loans []Loan) Balances {
	var b Balances
	b[AccountOwedToMe] = OwedToMe(loans)
	for _, t := range txs {
		switch t.Kind {
		case KindIncome:
			b.credit(t.Destination, t.Amount)
		case KindExpense:
			b.credit(t.Destination, t.Amount.Neg())
		case KindTransfer:
			b.credit(t.Source, t.Amount.Neg())
			b.credit(t.Destination, t.Amount)
		}
	}
	return b
}

// OwedToMe sums pending principal over active loans.
func OwedToMe(loans []Loan) Money {
	var total Money
	for _, l := range loans {
		if l.Active && l.Pending.Cents > 0 {
			total = total.Add(l.Pending)
		}
	}
	return total
}

// ComputeTotals sums income and expense transactions. Transfers, including
// loan legs, move money between accounts and count toward neither; loan
// legs are reported separately as disbursed and collected.
func ComputeTotals(txs []Transaction, b Balances) Totals {
	var t Totals
	for _, tx := range txs {
		switch {
		case tx.Kind == KindIncome:
			t.Income = t.Income.Add(tx.Amount)
		case tx.Kind == KindExpense:
			t.Expense = t.Expense.Add(tx.Amount)
		case tx.IsLoanLeg() && tx.Destination == AccountInTransit:
			t.Disbursed = t.Disbursed.Add(tx.Amount)
		case tx.IsLoanLeg():
			t.Collected = t.Collected.Add(tx.Amount)
		}
	}
	t.Balance = t.Income.Sub(t.Expense)
	t.Liquidity = b.Liquidity()
	t.Lent = b.Get(AccountOwedToMe)
	return t
}

func (b Balances) MarshalJSON() ([]byte, error) {
	out := make(map[string]Money, len(Accounts()))
	for _, a := range Accounts() {
		out[a.String()] = b[a]
	}
	return json.Marshal(out)
}

func (b *Balances) UnmarshalJSON(data []byte) error {
	var in map[string]Money
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*b = Balances{}
	for name, m := range in {
		a, err := ParseAccount(name)
		if err != nil {
			return err
		}
		if int(a) >= balanceSlots {
			return fmt.Errorf("%w: %q carries no balance", ErrValidation, a)
		}
		b[a] = m
	}
	return nil
}
