package ledger

import (
	"context"
	"time"
)

// AnchorReceipt acknowledges an append-only topic submission.
type AnchorReceipt struct {
	SequenceNumber int64
	Timestamp      time.Time
	Status         string
}

// Message is a single entry read back from a topic, in consensus order.
type Message struct {
	SequenceNumber int64
	Timestamp      time.Time
	Contents       []byte
}

// AnchorAdapter is the append-only ledger boundary used to make blob
// references tamper-evident.
type AnchorAdapter interface {
	SubmitMessage(ctx context.Context, topicID string, message []byte) (AnchorReceipt, error)
	QueryMessages(ctx context.Context, topicID string) ([]Message, error)
}

// MintResult identifies a freshly minted token unit.
type MintResult struct {
	TokenID       string
	SerialNumber  int64
	TransactionID string
}

// CollectionInfo describes an NFT collection.
type CollectionInfo struct {
	TokenID     string
	Name        string
	Symbol      string
	TotalSupply uint64
	TreasuryID  string
}

// TokenAdapter is the ledger token boundary used by the badge mint
// coordinator.
type TokenAdapter interface {
	Mint(ctx context.Context, collectionID string, metadata []byte) (MintResult, error)
	CollectionInfo(ctx context.Context, collectionID string) (CollectionInfo, error)
}

// AccountCreator provisions ledger accounts for registered subjects.
type AccountCreator interface {
	CreateAccount(ctx context.Context) (AccountInfo, error)
}

// AccountInfo is the result of provisioning a ledger account. The private
// key is returned once and never persisted by this service.
type AccountInfo struct {
	AccountID  string
	PublicKey  string
	PrivateKey string
}
