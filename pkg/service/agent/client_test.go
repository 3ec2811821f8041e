package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tantan-solutions/vc-exchange-service/pkg/service/framework"
)

func TestClientCreateCredentialOffer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/offers", r.URL.Path)

		var request CreateOfferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "UniversityDegreeCredential", request.CredentialType)

		writeJSON(t, w, CreateOfferResponse{
			OfferURI: "openid-credential-offer://?credential_offer_uri=abc",
			Session:  IssuanceSession{ID: "session-1", State: StateOfferCreated},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	resp, err := client.CreateCredentialOffer(context.Background(), CreateOfferRequest{
		CredentialType:   "UniversityDegreeCredential",
		IssuanceMetadata: map[string]any{"name": "Alice", "degree": "MSc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "session-1", resp.Session.ID)
	assert.Equal(t, StateOfferCreated, resp.Session.State)
}

func TestClientWrapsOfferFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"unknown credential type"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.CreateCredentialOffer(context.Background(), CreateOfferRequest{CredentialType: "Bogus"})
	require.Error(t, err)
	assert.Equal(t, framework.OfferCreationFailed, framework.KindOf(err))
	assert.Contains(t, err.Error(), "400")
}

func TestClientRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "try again", http.StatusBadGateway)
			return
		}
		writeJSON(t, w, ResolvedAuthorizationRequest{RequirementsSatisfied: true})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	resolved, err := client.ResolveAuthorizationRequest(context.Background(), "openid://request")
	require.NoError(t, err)
	assert.True(t, resolved.RequirementsSatisfied)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad request", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.ResolveAuthorizationRequest(context.Background(), "openid://request")
	require.Error(t, err)
	assert.Equal(t, framework.UpstreamAgentError, framework.KindOf(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.RequestToken(context.Background(), ResolvedCredentialOffer{})
	require.Error(t, err)
	assert.Equal(t, framework.UpstreamAgentError, framework.KindOf(err))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient("", time.Second, 0)
	assert.Error(t, err)
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	client, err := NewClient(endpoint, 5*time.Second, 2)
	require.NoError(t, err)
	client.retryInterval = time.Millisecond
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}
