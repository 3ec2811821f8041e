package agent

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	credmodel "github.com/tantan-solutions/vc-exchange-service/internal/credential"
	"github.com/tantan-solutions/vc-exchange-service/internal/util"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/framework"
)

// Client talks to the wallet agent over HTTP with JSON bodies. Transient
// failures (connection errors, 5xx) are retried with exponential backoff up
// to maxRetries; 4xx responses are returned immediately.
type Client struct {
	endpoint   string
	client     *http.Client
	maxRetries uint64

	// retryInterval overrides the initial backoff interval, zero keeps the
	// backoff default.
	retryInterval time.Duration
}

// NewClient builds an agent client against the given base endpoint.
func NewClient(endpoint string, requestTimeout time.Duration, maxRetries uint64) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("agent endpoint is required")
	}
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		client:     &http.Client{Timeout: requestTimeout},
		maxRetries: maxRetries,
	}, nil
}

func (c *Client) CreateCredentialOffer(ctx context.Context, request CreateOfferRequest) (*CreateOfferResponse, error) {
	var resp CreateOfferResponse
	if err := c.post(ctx, "/offers", request, &resp); err != nil {
		return nil, framework.WrapError(framework.OfferCreationFailed, err, "creating credential offer")
	}
	return &resp, nil
}

func (c *Client) ResolveCredentialOffer(ctx context.Context, offer json.RawMessage) (*ResolvedCredentialOffer, error) {
	body := map[string]json.RawMessage{"credentialOffer": offer}
	var resp ResolvedCredentialOffer
	if err := c.post(ctx, "/offers/resolve", body, &resp); err != nil {
		return nil, framework.WrapError(framework.UpstreamAgentError, err, "resolving credential offer")
	}
	return &resp, nil
}

func (c *Client) RequestToken(ctx context.Context, resolved ResolvedCredentialOffer) (*TokenResponse, error) {
	body := map[string]ResolvedCredentialOffer{"resolvedCredentialOffer": resolved}
	var resp TokenResponse
	if err := c.post(ctx, "/offers/token", body, &resp); err != nil {
		return nil, framework.WrapError(framework.UpstreamAgentError, err, "requesting access token")
	}
	return &resp, nil
}

func (c *Client) RequestCredentials(ctx context.Context, request RequestCredentialsRequest) ([]credmodel.StoredCredential, error) {
	var resp struct {
		Credentials []credmodel.StoredCredential `json:"credentials"`
	}
	if err := c.post(ctx, "/offers/credentials", request, &resp); err != nil {
		return nil, framework.WrapError(framework.UpstreamAgentError, err, "requesting credentials")
	}
	return resp.Credentials, nil
}

func (c *Client) ResolveAuthorizationRequest(ctx context.Context, requestURI string) (*ResolvedAuthorizationRequest, error) {
	body := map[string]string{"authorizationRequestUri": requestURI}
	var resp ResolvedAuthorizationRequest
	if err := c.post(ctx, "/authorization-requests/resolve", body, &resp); err != nil {
		return nil, framework.WrapError(framework.UpstreamAgentError, err, "resolving authorization request")
	}
	return &resp, nil
}

func (c *Client) AcceptAuthorizationRequest(ctx context.Context, resolved ResolvedAuthorizationRequest) (*PresentationResult, error) {
	body := map[string]ResolvedAuthorizationRequest{"resolvedAuthorizationRequest": resolved}
	var resp PresentationResult
	if err := c.post(ctx, "/authorization-requests/accept", body, &resp); err != nil {
		return nil, framework.WrapError(framework.UpstreamAgentError, err, "accepting authorization request")
	}
	return &resp, nil
}

func (c *Client) CreateAuthorizationRequest(ctx context.Context, request CreateAuthorizationRequestRequest) (*CreateAuthorizationRequestResponse, error) {
	var resp CreateAuthorizationRequestResponse
	if err := c.post(ctx, "/authorization-requests", request, &resp); err != nil {
		return nil, framework.WrapError(framework.UpstreamAgentError, err, "creating authorization request")
	}
	return &resp, nil
}

// post sends a JSON request and decodes a JSON response, retrying transient
// failures. A non-2xx status that is not retryable is surfaced with the
// response body for diagnosis.
func (c *Client) post(ctx context.Context, path string, requestBody, responseBody any) error {
	payload, err := json.Marshal(requestBody)
	if err != nil {
		return errors.Wrap(err, "marshalling agent request")
	}

	attempt := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(errors.Wrap(err, "building agent request"))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "calling agent at %s", path)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "reading agent response")
		}
		if !util.Is2xxResponse(resp.StatusCode) {
			err = errors.Errorf("agent returned %d for %s: %s", resp.StatusCode, path, util.SanitizeLog(string(body)))
			if resp.StatusCode >= http.StatusInternalServerError {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return body, nil
	}

	bo := backoff.NewExponentialBackOff()
	if c.retryInterval > 0 {
		bo.InitialInterval = c.retryInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)
	body, err := backoff.RetryNotifyWithData(attempt, policy, func(err error, next time.Duration) {
		logrus.WithError(err).Warnf("retrying agent call %s in %s", path, next)
	})
	if err != nil {
		return err
	}
	if responseBody == nil || len(body) == 0 {
		return nil
	}
	if err = json.Unmarshal(body, responseBody); err != nil {
		return errors.Wrapf(err, "decoding agent response for %s", path)
	}
	return nil
}
