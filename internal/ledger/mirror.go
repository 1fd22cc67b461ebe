package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vitalchain/vitalchain-api/pkg/config"
)

// MirrorClient reads topic history from a Hedera mirror node's REST API.
type MirrorClient struct {
	baseURL string
	http    *http.Client
}

// NewMirrorClient builds a reader from configuration.
func NewMirrorClient(cfg config.HederaConfig) *MirrorClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MirrorClient{
		baseURL: strings.TrimRight(cfg.MirrorBaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type mirrorMessage struct {
	ConsensusTimestamp string `json:"consensus_timestamp"`
	Message            string `json:"message"`
	SequenceNumber     int64  `json:"sequence_number"`
}

type mirrorPage struct {
	Messages []mirrorMessage `json:"messages"`
	Links    struct {
		Next *string `json:"next"`
	} `json:"links"`
}

// TopicMessages returns every message on the topic in consensus order,
// following pagination links until exhausted.
func (m *MirrorClient) TopicMessages(ctx context.Context, topicID string) ([]Message, error) {
	path := fmt.Sprintf("/api/v1/topics/%s/messages?order=asc&limit=100", topicID)

	var out []Message
	for path != "" {
		page, err := m.fetchPage(ctx, path)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Messages {
			contents, err := base64.StdEncoding.DecodeString(raw.Message)
			if err != nil {
				return nil, fmt.Errorf("decode message %d: %w", raw.SequenceNumber, err)
			}
			out = append(out, Message{
				SequenceNumber: raw.SequenceNumber,
				Timestamp:      parseConsensusTimestamp(raw.ConsensusTimestamp),
				Contents:       contents,
			})
		}
		if page.Links.Next != nil && *page.Links.Next != "" {
			path = *page.Links.Next
		} else {
			path = ""
		}
	}
	return out, nil
}

func (m *MirrorClient) fetchPage(ctx context.Context, path string) (*mirrorPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build mirror request: %w", err)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mirror request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("mirror request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var page mirrorPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode mirror response: %w", err)
	}
	return &page, nil
}

// parseConsensusTimestamp converts the mirror node's "seconds.nanos" format.
func parseConsensusTimestamp(raw string) time.Time {
	parts := strings.SplitN(raw, ".", 2)
	secs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	var nanos int64
	if len(parts) == 2 {
		// Pad/truncate the fractional part to nanosecond precision.
		frac := parts[1]
		if len(frac) > 9 {
			frac = frac[:9]
		}
		for len(frac) < 9 {
			frac += "0"
		}
		nanos, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(secs, nanos).UTC()
}
