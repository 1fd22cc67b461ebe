package ledger

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalchain/vitalchain-api/pkg/config"
)

func TestTopicMessagesFollowsPagination(t *testing.T) {
	first := base64.StdEncoding.EncodeToString([]byte(`{"document_id":"hr_1"}`))
	second := base64.StdEncoding.EncodeToString([]byte(`{"document_id":"hr_2"}`))

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.RawQuery {
		case "order=asc&limit=100":
			fmt.Fprintf(w, `{"messages":[{"consensus_timestamp":"1700000000.123456789","message":%q,"sequence_number":1}],"links":{"next":"/api/v1/topics/0.0.4242/messages?order=asc&limit=100&timestamp=gt:1700000000.123456789"}}`, first)
		default:
			fmt.Fprintf(w, `{"messages":[{"consensus_timestamp":"1700000001.5","message":%q,"sequence_number":2}],"links":{"next":null}}`, second)
		}
	}))
	defer srv.Close()

	client := NewMirrorClient(config.HederaConfig{MirrorBaseURL: srv.URL})
	messages, err := client.TopicMessages(context.Background(), "0.0.4242")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, 2, calls)

	assert.Equal(t, int64(1), messages[0].SequenceNumber)
	assert.Equal(t, `{"document_id":"hr_1"}`, string(messages[0].Contents))
	assert.Equal(t, time.Unix(1700000000, 123456789).UTC(), messages[0].Timestamp)

	// Short fractional parts are padded to nanoseconds.
	assert.Equal(t, time.Unix(1700000001, 500000000).UTC(), messages[1].Timestamp)
}

func TestTopicMessagesSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewMirrorClient(config.HederaConfig{MirrorBaseURL: srv.URL})
	_, err := client.TopicMessages(context.Background(), "0.0.404")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestParseConsensusTimestamp(t *testing.T) {
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), parseConsensusTimestamp("1700000000"))
	assert.Equal(t, time.Unix(1700000000, 120000000).UTC(), parseConsensusTimestamp("1700000000.12"))
	assert.True(t, parseConsensusTimestamp("garbage").IsZero())
}
