package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultRESTBaseURL = "https://api.twilio.com"
	defaultRESTTimeout = 15 * time.Second
)

// RESTClient talks to the carrier's REST API for call control: placing
// outbound calls and hanging up in-progress ones. Safe for concurrent use.
type RESTClient struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

// RESTOption is a functional option for configuring a RESTClient.
type RESTOption func(*RESTClient)

// WithRESTBaseURL overrides the API base URL. Used in tests to point at a
// local mock server.
func WithRESTBaseURL(u string) RESTOption {
	return func(c *RESTClient) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithRESTHTTPClient overrides the HTTP client.
func WithRESTHTTPClient(hc *http.Client) RESTOption {
	return func(c *RESTClient) { c.httpClient = hc }
}

// NewRESTClient creates a client authenticated with the account SID and auth
// token (HTTP basic auth, per the carrier's API convention).
func NewRESTClient(accountSID, authToken string, opts ...RESTOption) (*RESTClient, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("carrier: account SID and auth token are required")
	}
	c := &RESTClient{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    defaultRESTBaseURL,
		httpClient: &http.Client{Timeout: defaultRESTTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// DialRequest describes an outbound call to place.
type DialRequest struct {
	// To is the callee number in E.164 form.
	To string

	// From is the caller ID; must be a number owned by the account.
	From string

	// VoiceURL is the webhook the carrier fetches for TwiML when the callee
	// answers.
	VoiceURL string

	// StatusCallback optionally receives call lifecycle webhooks.
	StatusCallback string
}

// callResource is the subset of the carrier's call resource we read back.
type callResource struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// Dial places an outbound call and returns the carrier's call SID.
func (c *RESTClient) Dial(ctx context.Context, req DialRequest) (string, error) {
	if req.To == "" || req.From == "" || req.VoiceURL == "" {
		return "", fmt.Errorf("carrier: dial requires to, from, and voice url")
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Url", req.VoiceURL)
	if req.StatusCallback != "" {
		form.Set("StatusCallback", req.StatusCallback)
		for _, event := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", event)
		}
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.baseURL, c.accountSID)
	res, err := c.postForm(ctx, endpoint, form)
	if err != nil {
		return "", fmt.Errorf("carrier: dial %s: %w", req.To, err)
	}
	return res.SID, nil
}

// Hangup ends an in-progress call by setting its status to completed.
func (c *RESTClient) Hangup(ctx context.Context, callSID string) error {
	if callSID == "" {
		return fmt.Errorf("carrier: hangup requires a call SID")
	}

	form := url.Values{}
	form.Set("Status", "completed")

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json", c.baseURL, c.accountSID, callSID)
	if _, err := c.postForm(ctx, endpoint, form); err != nil {
		return fmt.Errorf("carrier: hangup %s: %w", callSID, err)
	}
	return nil
}

func (c *RESTClient) postForm(ctx context.Context, endpoint string, form url.Values) (*callResource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("api returned status %d", resp.StatusCode)
	}

	var res callResource
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &res, nil
}
