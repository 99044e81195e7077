package microlabsdk

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

// Client is a minimal Microlab HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
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

// Form represents the API sample form model.
type Form struct {
	ID           string `json:"id"`
	LabID        string `json:"lab_id"`
	Title        string `json:"title"`
	Brand        string `json:"brand,omitempty"`
	Site         string `json:"site,omitempty"`
	SampleDate   string `json:"sample_date,omitempty"`
	AnalysisDate string `json:"analysis_date,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

// Selection is one persisted (form, species) reading row.
type Selection struct {
	ID           string `json:"id"`
	FormID       string `json:"form_id"`
	BacteriaName string `json:"bacteria_name"`
	Delay        string `json:"bacteria_delay"`
	ReadingDay   string `json:"reading_day"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	ModifiedAt   string `json:"modified_at"`
}

// Reading wraps a selection with the forced-start flag.
type Reading struct {
	Selection Selection `json:"selection"`
	Forced    bool      `json:"forced"`
}

// WaitingBacteria is the derived display state of a selection.
type WaitingBacteria struct {
	Selection Selection `json:"selection"`
	State     string    `json:"state"`
	Remaining string    `json:"remaining,omitempty"`
	Forced    bool      `json:"forced"`
}

// WaitingForm is one entry of the waiting-room view.
type WaitingForm struct {
	FormID       string            `json:"form_id"`
	Title        string            `json:"title"`
	Brand        string            `json:"brand,omitempty"`
	Site         string            `json:"site,omitempty"`
	SampleDate   string            `json:"sample_date,omitempty"`
	AnalysisDate string            `json:"analysis_date,omitempty"`
	CreatedAt    string            `json:"created_at"`
	Bacteria     []WaitingBacteria `json:"bacteria"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateForm creates a sample form.
func (c *Client) CreateForm(ctx context.Context, title, site string) (Form, error) {
	body := map[string]any{"title": title}
	if site != "" {
		body["site"] = site
	}
	var resp Form
	err := c.do(ctx, http.MethodPost, "forms", body, &resp)
	return resp, err
}

// DeleteForm removes a form and everything attached to it.
func (c *Client) DeleteForm(ctx context.Context, formID string) error {
	return c.do(ctx, http.MethodDelete, "forms/"+url.PathEscape(formID), nil, nil)
}

// ReplaceSelection replaces the bacteria selection of a form.
func (c *Client) ReplaceSelection(ctx context.Context, formID string, bacteria []string) ([]Selection, error) {
	body := map[string]any{"bacteria": bacteria}
	var resp []Selection
	err := c.do(ctx, http.MethodPut, "forms/"+url.PathEscape(formID)+"/bacteria", body, &resp)
	return resp, err
}

// WaitingRoom fetches the forms with outstanding readings, optionally
// filtered by site.
func (c *Client) WaitingRoom(ctx context.Context, site string) ([]WaitingForm, error) {
	endpoint := "waiting-room"
	if site != "" {
		endpoint += "?site=" + url.QueryEscape(site)
	}
	var resp []WaitingForm
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// StartReading marks a bacteria reading as in progress.
func (c *Client) StartReading(ctx context.Context, formID, bacteria string) (Reading, error) {
	var resp Reading
	endpoint := fmt.Sprintf("forms/%s/bacteria/%s/start", url.PathEscape(formID), url.PathEscape(bacteria))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CompleteReading marks a bacteria reading as completed.
func (c *Client) CompleteReading(ctx context.Context, formID, bacteria string) (Selection, error) {
	var resp Selection
	endpoint := fmt.Sprintf("forms/%s/bacteria/%s/complete", url.PathEscape(formID), url.PathEscape(bacteria))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	fullURL := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
