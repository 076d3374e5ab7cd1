// Package proxmox is a small Proxmox VE REST API client.
package proxmox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client represents a Proxmox API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	AuthToken  string // "user@realm!tokenid=secret"
	Username   string
	Password   string
	ticket     string
	csrfToken  string
}

// APIError is a non-2xx API response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %s %s (status %d): %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %s %s (status %d)", e.Method, e.Path, e.StatusCode)
}

// NewClient creates a new Proxmox API client.
// insecure skips TLS verification for self-signed certificates.
func NewClient(baseURL, authToken string, insecure bool, timeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		AuthToken: authToken,
	}
}

// NewClientWithCredentials creates a new client with username/password.
func NewClientWithCredentials(baseURL, username, password string, insecure bool, timeout time.Duration) *Client {
	client := NewClient(baseURL, "", insecure, timeout)
	client.Username = username
	client.Password = password
	return client
}

// Authenticate obtains a ticket and CSRF token using username/password.
// It is a no-op for API token clients.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.AuthToken != "" {
		return nil
	}
	if c.Username == "" || c.Password == "" {
		return &APIError{Method: http.MethodPost, Path: "/access/ticket", StatusCode: http.StatusUnauthorized,
			Message: "username and password required for authentication"}
	}

	data := url.Values{}
	data.Set("username", c.Username)
	data.Set("password", c.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api2/json/access/ticket",
		strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("authentication request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp, "/access/ticket")
	}

	var result struct {
		Data struct {
			Ticket              string `json:"ticket"`
			CSRFPreventionToken string `json:"CSRFPreventionToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}

	c.ticket = result.Data.Ticket
	c.csrfToken = result.Data.CSRFPreventionToken
	return nil
}

func apiError(resp *http.Response, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	// errors come back as {"data":null,"message":"..."} or {"errors":{...}}
	var env struct {
		Message string            `json:"message"`
		Errors  map[string]string `json:"errors"`
	}
	if json.Unmarshal(body, &env) == nil {
		switch {
		case env.Message != "":
			msg = strings.TrimSpace(env.Message)
		case len(env.Errors) > 0:
			parts := make([]string, 0, len(env.Errors))
			for k, v := range env.Errors {
				parts = append(parts, k+": "+strings.TrimSpace(v))
			}
			msg = strings.Join(parts, "; ")
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
	}
	return &APIError{Method: resp.Request.Method, Path: path, StatusCode: resp.StatusCode, Message: msg}
}

// do performs an authenticated request and decodes the data field into out.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+"/api2/json"+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if c.ticket != "" {
		req.Header.Set("Cookie", "PVEAuthCookie="+c.ticket)
		if method != http.MethodGet {
			req.Header.Set("CSRFPreventionToken", c.csrfToken)
		}
	} else if c.AuthToken != "" {
		req.Header.Set("Authorization", "PVEAPIToken="+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apiError(resp, path)
	}
	if out == nil {
		return nil
	}

	var result APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// Version returns the API server version.
func (c *Client) Version(ctx context.Context) (*Version, error) {
	var v Version
	if err := c.do(ctx, http.MethodGet, "/version", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ClusterResources retrieves cluster resources, optionally filtered by
// type ("vm", "node", "storage").
func (c *Client) ClusterResources(ctx context.Context, typ string) ([]ClusterResource, error) {
	path := "/cluster/resources"
	if typ != "" {
		path += "?type=" + url.QueryEscape(typ)
	}
	var resources []ClusterResource
	if err := c.do(ctx, http.MethodGet, path, nil, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// ClusterStatus retrieves the cluster membership and quorum status.
func (c *Client) ClusterStatus(ctx context.Context) ([]ClusterStatusEntry, error) {
	var entries []ClusterStatusEntry
	if err := c.do(ctx, http.MethodGet, "/cluster/status", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func guestPath(node, kind string, vmid int) string {
	return fmt.Sprintf("/nodes/%s/%s/%d", url.PathEscape(node), kind, vmid)
}

// GuestStatus retrieves the current status of a qemu VM or lxc container.
func (c *Client) GuestStatus(ctx context.Context, node, kind string, vmid int) (*GuestStatus, error) {
	var st GuestStatus
	if err := c.do(ctx, http.MethodGet, guestPath(node, kind, vmid)+"/status/current", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// GuestAction issues a status action (start, stop, shutdown, suspend,
// resume, reboot) and returns the task UPID without waiting for it.
func (c *Client) GuestAction(ctx context.Context, node, kind string, vmid int, action string) (string, error) {
	var upid string
	if err := c.do(ctx, http.MethodPost, guestPath(node, kind, vmid)+"/status/"+action, url.Values{}, &upid); err != nil {
		return "", err
	}
	return upid, nil
}
