package ledger

import (
	"context"
	"fmt"

	hedera "github.com/hashgraph/hedera-sdk-go/v2"

	"github.com/vitalchain/vitalchain-api/pkg/config"
)

// initialAccountBalance funds new subject accounts with 1 HBAR.
var initialAccountBalance = hedera.HbarFromTinybar(100_000_000)

// HederaClient implements the anchor, token and account boundaries against
// the Hedera network. Consensus submissions go through the SDK; historical
// topic reads go through the mirror node (see mirror.go) because the SDK
// only exposes streaming subscriptions.
type HederaClient struct {
	client      *hedera.Client
	mirror      *MirrorClient
	operatorID  hedera.AccountID
	operatorKey hedera.PrivateKey
}

// NewHederaClient configures an operator-backed client for the given
// network.
func NewHederaClient(cfg config.HederaConfig) (*HederaClient, error) {
	var client *hedera.Client
	switch cfg.Network {
	case "mainnet":
		client = hedera.ClientForMainnet()
	case "testnet", "":
		client = hedera.ClientForTestnet()
	default:
		return nil, fmt.Errorf("unsupported hedera network %q", cfg.Network)
	}

	operatorID, err := hedera.AccountIDFromString(cfg.OperatorID)
	if err != nil {
		return nil, fmt.Errorf("parse operator id: %w", err)
	}
	operatorKey, err := hedera.PrivateKeyFromString(cfg.OperatorKey)
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}
	client.SetOperator(operatorID, operatorKey)

	return &HederaClient{
		client:      client,
		mirror:      NewMirrorClient(cfg),
		operatorID:  operatorID,
		operatorKey: operatorKey,
	}, nil
}

// SubmitMessage appends a message to the topic and waits for the consensus
// receipt.
func (h *HederaClient) SubmitMessage(ctx context.Context, topicID string, message []byte) (AnchorReceipt, error) {
	topic, err := hedera.TopicIDFromString(topicID)
	if err != nil {
		return AnchorReceipt{}, fmt.Errorf("parse topic id: %w", err)
	}

	resp, err := hedera.NewTopicMessageSubmitTransaction().
		SetTopicID(topic).
		SetMessage(message).
		Execute(h.client)
	if err != nil {
		return AnchorReceipt{}, fmt.Errorf("submit topic message: %w", err)
	}

	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return AnchorReceipt{}, fmt.Errorf("topic message receipt: %w", err)
	}
	if receipt.Status != hedera.StatusSuccess {
		return AnchorReceipt{}, fmt.Errorf("topic message rejected with status %s", receipt.Status)
	}

	return AnchorReceipt{
		SequenceNumber: int64(receipt.TopicSequenceNumber),
		Status:         receipt.Status.String(),
	}, nil
}

// QueryMessages reads the topic's history from the mirror node in consensus
// order.
func (h *HederaClient) QueryMessages(ctx context.Context, topicID string) ([]Message, error) {
	return h.mirror.TopicMessages(ctx, topicID)
}

// Mint creates one NFT under the collection and returns its serial and
// transaction reference. Metadata size limits are the caller's concern; the
// network rejects oversized metadata outright.
func (h *HederaClient) Mint(ctx context.Context, collectionID string, metadata []byte) (MintResult, error) {
	token, err := hedera.TokenIDFromString(collectionID)
	if err != nil {
		return MintResult{}, fmt.Errorf("parse collection id: %w", err)
	}

	resp, err := hedera.NewTokenMintTransaction().
		SetTokenID(token).
		SetMetadatas([][]byte{metadata}).
		Execute(h.client)
	if err != nil {
		return MintResult{}, fmt.Errorf("mint token: %w", err)
	}

	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return MintResult{}, fmt.Errorf("mint receipt: %w", err)
	}
	if receipt.Status != hedera.StatusSuccess {
		return MintResult{}, fmt.Errorf("mint rejected with status %s", receipt.Status)
	}
	if len(receipt.SerialNumbers) == 0 {
		return MintResult{}, fmt.Errorf("mint receipt carried no serial numbers")
	}

	return MintResult{
		TokenID:       collectionID,
		SerialNumber:  receipt.SerialNumbers[0],
		TransactionID: resp.TransactionID.String(),
	}, nil
}

// CreateCollection creates the NFT collection badges are minted into, with
// the operator as treasury and supply key holder. Returns the new token id.
func (h *HederaClient) CreateCollection(ctx context.Context, name, symbol string) (string, error) {
	resp, err := hedera.NewTokenCreateTransaction().
		SetTokenName(name).
		SetTokenSymbol(symbol).
		SetTokenType(hedera.TokenTypeNonFungibleUnique).
		SetTreasuryAccountID(h.operatorID).
		SetSupplyKey(h.operatorKey.PublicKey()).
		Execute(h.client)
	if err != nil {
		return "", fmt.Errorf("create collection: %w", err)
	}

	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return "", fmt.Errorf("collection receipt: %w", err)
	}
	if receipt.TokenID == nil {
		return "", fmt.Errorf("collection receipt missing token id")
	}
	return receipt.TokenID.String(), nil
}

// CollectionInfo queries the token collection.
func (h *HederaClient) CollectionInfo(ctx context.Context, collectionID string) (CollectionInfo, error) {
	token, err := hedera.TokenIDFromString(collectionID)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("parse collection id: %w", err)
	}

	info, err := hedera.NewTokenInfoQuery().
		SetTokenID(token).
		Execute(h.client)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("token info query: %w", err)
	}

	return CollectionInfo{
		TokenID:     collectionID,
		Name:        info.Name,
		Symbol:      info.Symbol,
		TotalSupply: info.TotalSupply,
		TreasuryID:  info.Treasury.String(),
	}, nil
}

// CreateAccount provisions a new ED25519 account with a small starting
// balance. The generated private key is handed back to the caller exactly
// once.
func (h *HederaClient) CreateAccount(ctx context.Context) (AccountInfo, error) {
	key, err := hedera.PrivateKeyGenerateEd25519()
	if err != nil {
		return AccountInfo{}, fmt.Errorf("generate account key: %w", err)
	}

	resp, err := hedera.NewAccountCreateTransaction().
		SetKey(key.PublicKey()).
		SetInitialBalance(initialAccountBalance).
		Execute(h.client)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("create account: %w", err)
	}

	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("account receipt: %w", err)
	}
	if receipt.AccountID == nil {
		return AccountInfo{}, fmt.Errorf("account receipt missing account id")
	}

	return AccountInfo{
		AccountID:  receipt.AccountID.String(),
		PublicKey:  key.PublicKey().String(),
		PrivateKey: key.String(),
	}, nil
}
