package sandbox

import "fmt"

// DemoTokens maps the bearer tokens of the demo accounts to usernames
var DemoTokens = map[string]string{
	"dev-token":   "alice",
	"bob-token":   "bob",
	"carol-token": "carol",
	"erin-token":  "erin",
}

// DemoMoneyDrop is the id of the money drop SeedDemo creates
const DemoMoneyDrop = "drop_welcome"

// SeedDemo fills a ledger with the accounts used for local runs.
// Every PIN-enabled account uses 1234; dave only accepts transfers that later fail.
func SeedDemo(l *Ledger) error {
	accounts := []Account{
		{Username: "alice", BalanceMinor: 5_000_000, PIN: "1234"},
		{Username: "bob", BalanceMinor: 1_000_000, PIN: "1234"},
		{Username: "carol", BalanceMinor: 250_000, PIN: "1234"},
		{Username: "dave", BalanceMinor: 0, PIN: "1234", Restricted: true},
		{Username: "erin", BalanceMinor: 100_000},
	}
	for _, a := range accounts {
		if err := l.AddAccount(a); err != nil {
			return fmt.Errorf("failed to seed account: %w", err)
		}
	}

	if err := l.AddMoneyDrop(DemoMoneyDrop, "alice", 50_000, 3); err != nil {
		return fmt.Errorf("failed to seed money drop: %w", err)
	}
	return nil
}
