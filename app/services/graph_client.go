package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Typed Graph API failures. The business flow maps these onto the service
// error taxonomy; transport details never leak past this package.
var (
	ErrGraphRateLimited     = errors.New("graph api throttled the request")
	ErrGraphTokenRejected   = errors.New("graph api rejected the access token")
	ErrGraphProfileNotFound = errors.New("graph api returned no profile for the scoped ID")
	ErrGraphUnavailable     = errors.New("graph api unreachable")
)

// ProfileFields is the subset of Graph API profile data this service stores
type ProfileFields struct {
	FirstName     *string `json:"first_name,omitempty"`
	LastName      *string `json:"last_name,omitempty"`
	ProfilePicURL *string `json:"profile_pic_url,omitempty"`
}

// GraphProfile is a successful fetch result: the mapped fields plus the raw
// response body, which is persisted as customer metadata.
type GraphProfile struct {
	Fields ProfileFields
	Raw    map[string]any
}

// GraphAPIClient fetches user profiles from the Meta Graph API
type GraphAPIClient interface {
	GetUserProfile(ctx context.Context, accessToken, scopedID string) (*GraphProfile, error)
}

// GraphAPIClientImpl calls the Meta Graph API over HTTPS.
// GET {base}/{version}/{scoped_id}?fields=first_name,last_name,profile_pic&access_token={token}
type GraphAPIClientImpl struct {
	BaseURL    string
	Version    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewGraphAPIClient creates a Graph API client with a pinned API version
func NewGraphAPIClient(baseURL, version string, timeout time.Duration) *GraphAPIClientImpl {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GraphAPIClientImpl{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Version:    version,
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
	}
}

func (c *GraphAPIClientImpl) Name() string { return "meta-graph" }

// graphErrorBody is the error envelope Meta returns on non-200 responses
type graphErrorBody struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// GetUserProfile fetches display profile fields for a scoped ID
func (c *GraphAPIClientImpl) GetUserProfile(ctx context.Context, accessToken, scopedID string) (*GraphProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s/%s", c.BaseURL, c.Version, url.PathEscape(scopedID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	q.Set("fields", "first_name,last_name,profile_pic")
	q.Set("access_token", accessToken)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Timeouts and transport failures are Unavailable, never NotFound
		return nil, fmt.Errorf("%w: %v", ErrGraphUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(resp)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrGraphUnavailable, err)
	}

	return &GraphProfile{
		Fields: mapProfileFields(raw),
		Raw:    raw,
	}, nil
}

// classifyError maps a non-200 Graph API response onto a typed failure
func (c *GraphAPIClientImpl) classifyError(resp *http.Response) error {
	var body graphErrorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrGraphRateLimited, body.Error.Message)
	}

	// Meta signals throttling through error codes on 400-level responses:
	// 4 (app level), 17 (user level), 32 (page level), 613 (custom)
	switch body.Error.Code {
	case 4, 17, 32, 613:
		return fmt.Errorf("%w: code %d: %s", ErrGraphRateLimited, body.Error.Code, body.Error.Message)
	case 190:
		return fmt.Errorf("%w: %s", ErrGraphTokenRejected, body.Error.Message)
	case 803, 100:
		return fmt.Errorf("%w: %s", ErrGraphProfileNotFound, body.Error.Message)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrGraphTokenRejected, resp.StatusCode, body.Error.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrGraphProfileNotFound, body.Error.Message)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrGraphUnavailable, resp.StatusCode, body.Error.Message)
	}
}

// mapProfileFields extracts profile fields from a Graph API response,
// handling both Messenger and Instagram response shapes.
func mapProfileFields(raw map[string]any) ProfileFields {
	fields := ProfileFields{}

	if v, ok := raw["first_name"].(string); ok && v != "" {
		fields.FirstName = &v
	}
	if v, ok := raw["last_name"].(string); ok && v != "" {
		fields.LastName = &v
	}

	// Instagram responses may carry only a combined 'name'
	if fields.FirstName == nil {
		if name, ok := raw["name"].(string); ok && name != "" {
			parts := strings.SplitN(name, " ", 2)
			fields.FirstName = &parts[0]
			if len(parts) > 1 {
				fields.LastName = &parts[1]
			}
		}
	}

	// 'profile_pic' works for both Messenger and Instagram
	if v, ok := raw["profile_pic"].(string); ok && v != "" {
		fields.ProfilePicURL = &v
	}

	return fields
}
