// Package smartclaim is a Go client for the smartclaimd HTTP API.
package smartclaim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom
// http.Client. Contract actions wait for confirmation, so it is generous.
const DefaultHTTPTimeout = 2 * time.Minute

// Client wraps the HTTP interactions with smartclaimd.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Wallet is the wallet session as reported by the server.
type Wallet struct {
	State    string `json:"state"`
	Account  string `json:"account,omitempty"`
	Detected bool   `json:"detected"`
	DeepLink string `json:"deep_link,omitempty"`
}

// Notice is a message meant for the user.
type Notice struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Code       string    `json:"code,omitempty"`
	Action     string    `json:"action,omitempty"`
	Message    string    `json:"message"`
	TxHash     string    `json:"tx_hash,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ActionResult is the outcome of a confirmed contract action.
type ActionResult struct {
	Action      string `json:"action"`
	Notice      Notice `json:"notice"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
}

// PolicyInput registers a policy. Payout is a decimal ether amount.
type PolicyInput struct {
	PolicyHolder string `json:"policy_holder"`
	Payout       string `json:"payout"`
	Condition    string `json:"condition"`
}

// ClaimInput submits a claim. Only the attachment name is sent.
type ClaimInput struct {
	PolicyID       string
	Evidence       string
	AttachmentName string
}

// APIError is returned for every non-2xx response. Notice holds the message
// the server wants shown to the user, when there is one.
type APIError struct {
	StatusCode int
	Code       string  `json:"code"`
	Message    string  `json:"message"`
	Notice     *Notice `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("smartclaim api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("smartclaim api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the API at rawURL. When httpClient is
// nil, a default client is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Wallet fetches the current wallet session.
func (c *Client) Wallet(ctx context.Context) (Wallet, error) {
	var w Wallet
	err := c.send(ctx, http.MethodGet, "/api/v1/wallet", nil, "", &w)
	return w, err
}

// ToggleWallet connects or disconnects the server-side wallet. With wait set,
// a connect returns only once the contract is bound or binding has failed.
func (c *Client) ToggleWallet(ctx context.Context, wait bool) (Wallet, error) {
	endpoint := "/api/v1/wallet/toggle"
	if wait {
		endpoint += "?wait=true"
	}
	var out struct {
		Wallet Wallet `json:"wallet"`
	}
	err := c.send(ctx, http.MethodPost, endpoint, nil, "", &out)
	return out.Wallet, err
}

// RegisterPolicy registers a new policy.
func (c *Client) RegisterPolicy(ctx context.Context, in PolicyInput) (ActionResult, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return ActionResult{}, fmt.Errorf("encode request: %w", err)
	}
	var res ActionResult
	err = c.send(ctx, http.MethodPost, "/api/v1/policies", bytes.NewReader(body), "application/json", &res)
	return res, err
}

// SubmitClaim submits a claim as a multipart form. The attachment is sent
// with an empty body since the server only reads its name.
func (c *Client) SubmitClaim(ctx context.Context, in ClaimInput) (ActionResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("policy_id", in.PolicyID); err != nil {
		return ActionResult{}, err
	}
	if err := mw.WriteField("evidence", in.Evidence); err != nil {
		return ActionResult{}, err
	}
	if in.AttachmentName != "" {
		if _, err := mw.CreateFormFile("attachment", in.AttachmentName); err != nil {
			return ActionResult{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return ActionResult{}, err
	}
	var res ActionResult
	err := c.send(ctx, http.MethodPost, "/api/v1/claims", &buf, mw.FormDataContentType(), &res)
	return res, err
}

// ApproveClaim approves the claim filed against policyID.
func (c *Client) ApproveClaim(ctx context.Context, policyID string) (ActionResult, error) {
	var res ActionResult
	err := c.send(ctx, http.MethodPost, "/api/v1/claims/"+url.PathEscape(policyID)+"/approve", nil, "", &res)
	return res, err
}

// Payout pays out the approved claim of policyID.
func (c *Client) Payout(ctx context.Context, policyID string) (ActionResult, error) {
	var res ActionResult
	err := c.send(ctx, http.MethodPost, "/api/v1/claims/"+url.PathEscape(policyID)+"/payout", nil, "", &res)
	return res, err
}

// Notices lists recent notices, newest first.
func (c *Client) Notices(ctx context.Context, limit int) ([]Notice, error) {
	endpoint := "/api/v1/notices"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var out []Notice
	err := c.send(ctx, http.MethodGet, endpoint, nil, "", &out)
	return out, err
}

func (c *Client) send(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out any) error {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	ref.Path = path.Join(c.baseURL.Path, ref.Path)
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(ref).String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	var envelope struct {
		Error  *APIError `json:"error"`
		Notice *Notice   `json:"notice"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		if envelope.Notice != nil && envelope.Notice.Message != "" {
			apiErr.Notice = envelope.Notice
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}
