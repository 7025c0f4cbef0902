// Package tcm implements the Tableau Cloud Manager control-plane client:
// session login, activity-log locator listing, batched download-URL
// resolution and anonymous object fetch.
package tcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/pulse-ops/internal/domain"
)

const (
	sessionTokenHeader = "x-tableau-session-token"

	// listTimeFormat is what the activity-log listing endpoint expects for
	// startTime/endTime.
	listTimeFormat = "2006-01-02T15:04:05"
)

// Client talks to the TCM REST API. Listing and login use a 30s timeout;
// URL resolution and downloads use a 60s timeout.
type Client struct {
	httpClient     *http.Client
	downloadClient *http.Client
	logger         *slog.Logger
}

// NewClient creates a TCM client.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		downloadClient: &http.Client{Timeout: 60 * time.Second},
		logger:         logger.With("component", "tcm_client"),
	}
}

type loginResponse struct {
	SessionToken string `json:"sessionToken"`
	TenantID     string `json:"tenantId"`
}

// Login exchanges a PAT for a session token and tenant ID.
func (c *Client) Login(ctx context.Context, cred domain.TCMCredential) (domain.TCMSession, error) {
	body, err := json.Marshal(map[string]string{"token": cred.PATToken})
	if err != nil {
		return domain.TCMSession{}, fmt.Errorf("failed to marshal login payload: %w", err)
	}

	loginURL := strings.TrimRight(cred.URI, "/") + "/api/v1/pat/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, bytes.NewReader(body))
	if err != nil {
		return domain.TCMSession{}, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.TCMSession{}, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.TCMSession{}, fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var parsed loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.TCMSession{}, fmt.Errorf("failed to decode login response: %w", err)
	}
	if parsed.SessionToken == "" || parsed.TenantID == "" {
		return domain.TCMSession{}, fmt.Errorf("login response missing sessionToken or tenantId")
	}

	return domain.TCMSession{
		URI:          strings.TrimRight(cred.URI, "/"),
		SessionToken: parsed.SessionToken,
		TenantID:     parsed.TenantID,
	}, nil
}

type listResponse struct {
	Files []struct {
		Path string `json:"path"`
	} `json:"files"`
	NextPageToken string `json:"nextPageToken"`
}

// ListLocatorPage returns one page of activity-log locators for the chunk.
// A 403 is reported as domain.ErrPageAccessDenied so the caller can decide
// whether it ends pagination or fails the run.
func (c *Client) ListLocatorPage(ctx context.Context, session domain.TCMSession, siteLUID string, chunk domain.DateChunk, pageToken string) (domain.LocatorPage, error) {
	params := url.Values{}
	params.Set("startTime", chunk.Start.UTC().Format(listTimeFormat))
	params.Set("endTime", chunk.End.UTC().Format(listTimeFormat))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	listURL := fmt.Sprintf("%s/api/v1/tenants/%s/sites/%s/activitylog?%s",
		session.URI, session.TenantID, siteLUID, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return domain.LocatorPage{}, fmt.Errorf("failed to build listing request: %w", err)
	}
	req.Header.Set(sessionTokenHeader, session.SessionToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.LocatorPage{}, fmt.Errorf("listing request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return domain.LocatorPage{}, domain.ErrPageAccessDenied
	case resp.StatusCode != http.StatusOK:
		return domain.LocatorPage{}, fmt.Errorf("listing failed with status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.LocatorPage{}, fmt.Errorf("failed to read listing response: %w", err)
	}

	// The endpoint returns an empty body when a chunk has no log objects.
	if len(bytes.TrimSpace(raw)) == 0 {
		return domain.LocatorPage{}, nil
	}

	var parsed listResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.LocatorPage{}, fmt.Errorf("failed to decode listing response: %w", err)
	}

	page := domain.LocatorPage{NextPageToken: parsed.NextPageToken}
	for _, f := range parsed.Files {
		if f.Path != "" {
			page.Locators = append(page.Locators, domain.LogLocator(f.Path))
		}
	}
	return page, nil
}

type resolveResponse struct {
	Files []struct {
		Path string `json:"path"`
		URL  string `json:"url"`
	} `json:"files"`
}

// ResolveDownloadURLs resolves all locators to pre-authorized URLs in one
// batched request. The response may omit unresolvable entries and is not
// ordered.
func (c *Client) ResolveDownloadURLs(ctx context.Context, session domain.TCMSession, siteLUID string, locators []domain.LogLocator) ([]domain.DownloadDescriptor, error) {
	paths := make([]string, len(locators))
	for i, l := range locators {
		paths[i] = string(l)
	}

	body, err := json.Marshal(map[string]any{
		"tenantId": session.TenantID,
		"files":    paths,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resolution payload: %w", err)
	}

	resolveURL := fmt.Sprintf("%s/api/v1/tenants/%s/sites/%s/activitylog",
		session.URI, session.TenantID, siteLUID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resolveURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build resolution request: %w", err)
	}
	req.Header.Set(sessionTokenHeader, session.SessionToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolution request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resolution failed with status %d", resp.StatusCode)
	}

	var parsed resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode resolution response: %w", err)
	}

	descriptors := make([]domain.DownloadDescriptor, 0, len(parsed.Files))
	for _, f := range parsed.Files {
		descriptors = append(descriptors, domain.DownloadDescriptor{
			Locator: domain.LogLocator(f.Path),
			URL:     f.URL,
		})
	}
	return descriptors, nil
}

// DownloadLogFile fetches one resolved URL. Download URLs are pre-authorized;
// no session header is sent.
func (c *Client) DownloadLogFile(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read download body: %w", err)
	}
	return string(content), nil
}
