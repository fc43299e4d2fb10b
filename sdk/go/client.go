package safetracksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal SafeTrack HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	IdentityID  string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Observation represents the API observation model.
type Observation struct {
	ID                string    `json:"id"`
	Kind              string    `json:"kind"`
	Focus             string    `json:"focus"`
	Location          string    `json:"location"`
	Unit              string    `json:"unit"`
	AreaManager       string    `json:"area_manager"`
	Category          string    `json:"category"`
	SubCategory       string    `json:"sub_category"`
	Description       string    `json:"description"`
	SuggestedSolution string    `json:"suggested_solution,omitempty"`
	ImageRef          string    `json:"image_ref,omitempty"`
	Status            string    `json:"status"`
	Comments          []Comment `json:"comments"`
	CreatedAt         string    `json:"created_at"`
	ClosedAt          *string   `json:"closed_at,omitempty"`
	ClosedBy          *string   `json:"closed_by,omitempty"`
	IsActionable      bool      `json:"is_actionable"`
	ActionAssigneeID  *string   `json:"action_assignee_id,omitempty"`
	ActionStatus      *string   `json:"action_status,omitempty"`
}

// Comment is an observation comment.
type Comment struct {
	ID         string `json:"id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	CreatedAt  string `json:"created_at"`
}

// Notification is a side-channel message.
type Notification struct {
	ID            string `json:"id"`
	RecipientID   string `json:"recipient_id"`
	Message       string `json:"message"`
	Kind          string `json:"kind"`
	ObservationID string `json:"observation_id,omitempty"`
	CreatedAt     string `json:"created_at"`
	Read          bool   `json:"read"`
}

// SubmitRequest is the payload for submitting an observation.
type SubmitRequest struct {
	Kind              string  `json:"kind"`
	Focus             string  `json:"focus"`
	Location          string  `json:"location"`
	Unit              string  `json:"unit"`
	AreaManager       string  `json:"area_manager"`
	Category          string  `json:"category"`
	SubCategory       string  `json:"sub_category"`
	Description       string  `json:"description"`
	SuggestedSolution string  `json:"suggested_solution,omitempty"`
	ActionDeadline    *string `json:"action_deadline,omitempty"`
	ImageBase64       string  `json:"image_base64,omitempty"`
}

// ObservationList is the visible-set listing with the degraded flag.
type ObservationList struct {
	Observations []Observation `json:"observations"`
	Degraded     bool          `json:"degraded"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Submit creates a new observation.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (Observation, error) {
	var resp Observation
	err := c.do(ctx, http.MethodPost, "v0/observations", req, &resp)
	return resp, err
}

// List returns the observations visible to the authenticated identity.
func (c *Client) List(ctx context.Context) (ObservationList, error) {
	var resp ObservationList
	err := c.do(ctx, http.MethodGet, "v0/observations", nil, &resp)
	return resp, err
}

// Get fetches an observation by id.
func (c *Client) Get(ctx context.Context, id string) (Observation, error) {
	var resp Observation
	err := c.do(ctx, http.MethodGet, "v0/observations/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// AddComment comments on an observation.
func (c *Client) AddComment(ctx context.Context, id, text string) (Observation, error) {
	var resp Observation
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/observations/%s/comments", url.PathEscape(id)), map[string]any{"text": text}, &resp)
	return resp, err
}

// Reassign routes an observation to a different area manager.
func (c *Client) Reassign(ctx context.Context, id, areaManager string) (Observation, error) {
	var resp Observation
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/observations/%s/reassign", url.PathEscape(id)), map[string]any{"area_manager": areaManager}, &resp)
	return resp, err
}

// Close closes an observation.
func (c *Client) Close(ctx context.Context, id string) (Observation, error) {
	var resp Observation
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/observations/%s/close", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// AssignAction assigns the remediation action.
func (c *Client) AssignAction(ctx context.Context, id, assigneeID string) (Observation, error) {
	var resp Observation
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/observations/%s/action/assign", url.PathEscape(id)), map[string]any{"assignee_id": assigneeID}, &resp)
	return resp, err
}

// CompleteAction completes the remediation action.
func (c *Client) CompleteAction(ctx context.Context, id string) (Observation, error) {
	var resp Observation
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/observations/%s/action/complete", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Actions lists actionable observations assigned to the authenticated
// identity.
func (c *Client) Actions(ctx context.Context) ([]Observation, error) {
	var resp []Observation
	err := c.do(ctx, http.MethodGet, "v0/actions", nil, &resp)
	return resp, err
}

// Notifications lists the identity's notifications.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var resp []Notification
	err := c.do(ctx, http.MethodGet, "v0/notifications", nil, &resp)
	return resp, err
}

// Summary returns dashboard metrics as a generic document.
func (c *Client) Summary(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, "v0/summary", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.IdentityID != "":
		req.Header.Set("X-Identity-Id", c.IdentityID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
