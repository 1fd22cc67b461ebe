package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/vitalchain/vitalchain-api/pkg/config"
)

// BlobStore is the content-addressed upload/fetch boundary consumed by the
// anchoring pipeline.
type BlobStore interface {
	Upload(ctx context.Context, payload []byte) (string, error)
	Fetch(ctx context.Context, contentID string) ([]byte, error)
}

// Client talks to a Pinata-compatible pinning API for writes and an IPFS
// gateway for reads.
type Client struct {
	apiBaseURL     string
	gatewayBaseURL string
	apiKey         string
	http           *http.Client
}

// NewClient builds a client from configuration.
func NewClient(cfg config.IPFSConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiBaseURL:     strings.TrimRight(cfg.APIBaseURL, "/"),
		gatewayBaseURL: strings.TrimRight(cfg.GatewayBaseURL, "/"),
		apiKey:         cfg.APIKey,
		http:           &http.Client{Timeout: timeout},
	}
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// Upload pins the payload and returns its content identifier. The store is
// content addressed, so re-uploading identical bytes is harmless.
func (c *Client) Upload(ctx context.Context, payload []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "envelope.json")
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return "", fmt.Errorf("write multipart payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalise multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+"/pinning/pinFileToIPFS", body)
	if err != nil {
		return "", fmt.Errorf("build pin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("pin request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("pin request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var pinned pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pinned); err != nil {
		return "", fmt.Errorf("decode pin response: %w", err)
	}
	if pinned.IpfsHash == "" {
		return "", fmt.Errorf("pin response missing content identifier")
	}
	return pinned.IpfsHash, nil
}

// Fetch retrieves pinned bytes through the configured gateway.
func (c *Client) Fetch(ctx context.Context, contentID string) ([]byte, error) {
	if contentID == "" {
		return nil, fmt.Errorf("empty content identifier")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gatewayBaseURL+"/"+contentID, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch request returned %d for %s", resp.StatusCode, contentID)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read fetch response: %w", err)
	}
	return payload, nil
}
