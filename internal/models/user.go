package models

import "time"

// User is a registered subject. LedgerAccountID is the Hedera account
// created at registration. The raw email never leaves the users table; the
// pipeline only ever sees its one-way hash.
type User struct {
	ID              string    `db:"id" json:"id"`
	Username        string    `db:"username" json:"username"`
	Email           string    `db:"email" json:"email"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	LedgerAccountID string    `db:"ledger_account_id" json:"ledger_account_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
