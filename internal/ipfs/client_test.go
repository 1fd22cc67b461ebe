package ipfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalchain/vitalchain-api/pkg/config"
)

func TestUploadPinsAndReturnsContentID(t *testing.T) {
	var gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pinning/pinFileToIPFS", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		gotBody, err = io.ReadAll(file)
		require.NoError(t, err)

		fmt.Fprint(w, `{"IpfsHash":"QmExampleCID"}`)
	}))
	defer srv.Close()

	client := NewClient(config.IPFSConfig{APIBaseURL: srv.URL, APIKey: "secret-token"})
	cid, err := client.Upload(context.Background(), []byte(`{"ciphertext":"aa"}`))
	require.NoError(t, err)
	assert.Equal(t, "QmExampleCID", cid)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, `{"ciphertext":"aa"}`, string(gotBody))
}

func TestUploadRejectsAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(config.IPFSConfig{APIBaseURL: srv.URL})
	_, err := client.Upload(context.Background(), []byte("payload"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestUploadRejectsEmptyHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client := NewClient(config.IPFSConfig{APIBaseURL: srv.URL})
	_, err := client.Upload(context.Background(), []byte("payload"))
	require.Error(t, err)
}

func TestFetchReadsFromGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/QmExampleCID", r.URL.Path)
		fmt.Fprint(w, `{"ciphertext":"aa"}`)
	}))
	defer srv.Close()

	client := NewClient(config.IPFSConfig{GatewayBaseURL: srv.URL})
	payload, err := client.Fetch(context.Background(), "QmExampleCID")
	require.NoError(t, err)
	assert.Equal(t, `{"ciphertext":"aa"}`, string(payload))
}

func TestFetchRejectsEmptyContentID(t *testing.T) {
	client := NewClient(config.IPFSConfig{})
	_, err := client.Fetch(context.Background(), "")
	require.Error(t, err)
}
