// Package tableau implements the Tableau REST and Pulse API client used for
// identity lookups and Pulse metric management.
package tableau

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/user/pulse-ops/internal/domain"
)

const (
	authHeader      = "X-Tableau-Auth"
	usersPageSize   = 1000
	defsPageSize    = 1000
	subsPageSize    = 1000
	defaultAPIVer   = "3.21"
	prefsReqType    = "application/vnd.tableau.pulse.subscriptionservice.v1.UpdateUserPreferencesRequest+json"
	prefsRespAccept = "application/vnd.tableau.pulse.subscriptionservice.v1.UpdateUserPreferencesResponse+json"
)

// Client talks to the Tableau REST API (versioned, site-scoped) and the
// Pulse API (unversioned, under /api/-/pulse).
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Tableau client.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "tableau_client"),
	}
}

type signInRequest struct {
	Credentials struct {
		Name                      string `json:"name,omitempty"`
		Password                  string `json:"password,omitempty"`
		PersonalAccessTokenName   string `json:"personalAccessTokenName,omitempty"`
		PersonalAccessTokenSecret string `json:"personalAccessTokenSecret,omitempty"`
		Site                      struct {
			ContentURL string `json:"contentUrl"`
		} `json:"site"`
	} `json:"credentials"`
}

type signInResponse struct {
	Credentials struct {
		Token string `json:"token"`
		Site  struct {
			ID string `json:"id"`
		} `json:"site"`
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"credentials"`
}

// SignIn authenticates with a PAT or username/password and returns a session
// scoped to the resolved site.
func (c *Client) SignIn(ctx context.Context, cred domain.TableauCredential) (domain.TableauSession, error) {
	apiVersion := cred.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVer
	}

	var payload signInRequest
	switch cred.Method {
	case domain.AuthMethodPassword:
		payload.Credentials.Name = cred.Username
		payload.Credentials.Password = cred.Password
	default:
		payload.Credentials.PersonalAccessTokenName = cred.PATName
		payload.Credentials.PersonalAccessTokenSecret = cred.PATSecret
	}
	payload.Credentials.Site.ContentURL = cred.SiteContentURL

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.TableauSession{}, fmt.Errorf("failed to marshal signin payload: %w", err)
	}

	server := strings.TrimRight(cred.ServerURL, "/")
	signInURL := fmt.Sprintf("%s/api/%s/auth/signin", server, apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signInURL, bytes.NewReader(body))
	if err != nil {
		return domain.TableauSession{}, fmt.Errorf("failed to build signin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.TableauSession{}, fmt.Errorf("signin request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.TableauSession{}, fmt.Errorf("signin failed with status %d", resp.StatusCode)
	}

	var parsed signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.TableauSession{}, fmt.Errorf("failed to decode signin response: %w", err)
	}
	if parsed.Credentials.Token == "" || parsed.Credentials.Site.ID == "" {
		return domain.TableauSession{}, fmt.Errorf("signin response missing token or site id")
	}

	return domain.TableauSession{
		ServerURL:  server,
		APIVersion: apiVersion,
		Token:      parsed.Credentials.Token,
		SiteID:     parsed.Credentials.Site.ID,
		UserID:     parsed.Credentials.User.ID,
	}, nil
}

// get issues an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, session domain.TableauSession, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(authHeader, session.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// send issues an authenticated request with a JSON body and checks the
// response status against ok.
func (c *Client) send(ctx context.Context, session domain.TableauSession, method, url string, payload any, ok ...int) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(authHeader, session.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	for _, code := range ok {
		if resp.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("request failed with status %d", resp.StatusCode)
}

type usersResponse struct {
	Users struct {
		User []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Email    string `json:"email"`
			FullName string `json:"fullName"`
			SiteRole string `json:"siteRole"`
		} `json:"user"`
	} `json:"users"`
	Pagination struct {
		PageNumber     string `json:"pageNumber"`
		PageSize       string `json:"pageSize"`
		TotalAvailable string `json:"totalAvailable"`
	} `json:"pagination"`
}

// ListUsers fetches the complete site user directory, paging until the
// reported total is covered.
func (c *Client) ListUsers(ctx context.Context, session domain.TableauSession) ([]domain.User, error) {
	var all []domain.User

	for pageNumber := 1; ; pageNumber++ {
		usersURL := fmt.Sprintf("%s/api/%s/sites/%s/users?pageSize=%d&pageNumber=%d",
			session.ServerURL, session.APIVersion, session.SiteID, usersPageSize, pageNumber)

		var parsed usersResponse
		if err := c.get(ctx, session, usersURL, &parsed); err != nil {
			return nil, fmt.Errorf("failed to list users page %d: %w", pageNumber, err)
		}

		if len(parsed.Users.User) == 0 {
			break
		}
		for _, u := range parsed.Users.User {
			all = append(all, domain.User{
				ID:       u.ID,
				Name:     u.Name,
				Email:    u.Email,
				FullName: u.FullName,
				SiteRole: u.SiteRole,
			})
		}

		total := atoi(parsed.Pagination.TotalAvailable)
		if total == 0 || pageNumber*usersPageSize >= total {
			break
		}
	}

	return all, nil
}

// definitionEnvelope is the raw shape of one definition entry.
type definitionEnvelope struct {
	Metadata struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"metadata"`
	Certification struct {
		IsCertified bool   `json:"is_certified"`
		Note        string `json:"note"`
		ModifiedBy  string `json:"modified_by"`
		ModifiedAt  string `json:"modified_at"`
	} `json:"certification"`
}

type definitionsResponse struct {
	// The definitions list has shipped under several key spellings; all are
	// decoded and extractDefinitions picks the populated one.
	Definitions       []definitionEnvelope `json:"definitions"`
	MetricDefinitions []definitionEnvelope `json:"metric_definitions"`
	MetricDefsCamel   []definitionEnvelope `json:"metricDefinitions"`
	NextPageToken     string               `json:"next_page_token"`
}

// extractDefinitions is the single canonical extraction for the definitions
// response shape.
func extractDefinitions(parsed definitionsResponse) []definitionEnvelope {
	switch {
	case len(parsed.Definitions) > 0:
		return parsed.Definitions
	case len(parsed.MetricDefinitions) > 0:
		return parsed.MetricDefinitions
	default:
		return parsed.MetricDefsCamel
	}
}

// ListDefinitions fetches all Pulse metric definitions, following the opaque
// page token until exhausted.
func (c *Client) ListDefinitions(ctx context.Context, session domain.TableauSession) ([]domain.Definition, error) {
	var all []domain.Definition
	pageToken := ""

	for {
		defsURL := fmt.Sprintf("%s/api/-/pulse/definitions?page_size=%d", session.ServerURL, defsPageSize)
		if pageToken != "" {
			defsURL += "&page_token=" + url.QueryEscape(pageToken)
		}

		var parsed definitionsResponse
		if err := c.get(ctx, session, defsURL, &parsed); err != nil {
			return nil, fmt.Errorf("failed to list definitions: %w", err)
		}

		envelopes := extractDefinitions(parsed)
		if len(envelopes) == 0 {
			break
		}
		for _, d := range envelopes {
			all = append(all, domain.Definition{
				ID:                d.Metadata.ID,
				Name:              d.Metadata.Name,
				Certified:         d.Certification.IsCertified,
				CertificationNote: d.Certification.Note,
				CertifiedBy:       d.Certification.ModifiedBy,
				CertifiedAt:       d.Certification.ModifiedAt,
			})
		}

		pageToken = parsed.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return all, nil
}

type metricResponse struct {
	Metric struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		DefinitionID string `json:"definition_id"`
	} `json:"metric"`
}

// GetMetric fetches one scoped metric's detail.
func (c *Client) GetMetric(ctx context.Context, session domain.TableauSession, metricID string) (domain.Metric, error) {
	metricURL := fmt.Sprintf("%s/api/-/pulse/metrics/%s", session.ServerURL, url.PathEscape(metricID))

	var parsed metricResponse
	if err := c.get(ctx, session, metricURL, &parsed); err != nil {
		return domain.Metric{}, fmt.Errorf("failed to get metric %s: %w", metricID, err)
	}

	return domain.Metric{
		ID:           metricID,
		Name:         parsed.Metric.Metadata.Name,
		DefinitionID: parsed.Metric.DefinitionID,
	}, nil
}

type subscriptionsResponse struct {
	Subscriptions []struct {
		ID       string `json:"id"`
		Follower struct {
			UserID string `json:"user_id"`
		} `json:"follower"`
	} `json:"subscriptions"`
}

// ListSubscriptions returns the current followers of a metric.
func (c *Client) ListSubscriptions(ctx context.Context, session domain.TableauSession, metricID string) ([]domain.Subscription, error) {
	subsURL := fmt.Sprintf("%s/api/-/pulse/subscriptions?metric_id=%s&page_size=%d",
		session.ServerURL, url.QueryEscape(metricID), subsPageSize)

	var parsed subscriptionsResponse
	if err := c.get(ctx, session, subsURL, &parsed); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for metric %s: %w", metricID, err)
	}

	subs := make([]domain.Subscription, 0, len(parsed.Subscriptions))
	for _, s := range parsed.Subscriptions {
		subs = append(subs, domain.Subscription{
			ID:       s.ID,
			MetricID: metricID,
			UserID:   s.Follower.UserID,
		})
	}
	return subs, nil
}

// BatchCreateSubscriptions adds followers to a metric in one request.
func (c *Client) BatchCreateSubscriptions(ctx context.Context, session domain.TableauSession, metricID string, userIDs []string) error {
	followers := make([]map[string]string, len(userIDs))
	for i, id := range userIDs {
		followers[i] = map[string]string{"user_id": id}
	}
	payload := map[string]any{
		"metric_id": metricID,
		"followers": followers,
	}

	createURL := session.ServerURL + "/api/-/pulse/subscriptions:batchCreate"
	if err := c.send(ctx, session, http.MethodPost, createURL, payload, http.StatusOK, http.StatusCreated); err != nil {
		return fmt.Errorf("failed to batch create subscriptions for metric %s: %w", metricID, err)
	}
	return nil
}

// DeleteSubscription removes one follower subscription.
func (c *Client) DeleteSubscription(ctx context.Context, session domain.TableauSession, subscriptionID string) error {
	deleteURL := fmt.Sprintf("%s/api/-/pulse/subscriptions/%s", session.ServerURL, url.PathEscape(subscriptionID))
	if err := c.send(ctx, session, http.MethodDelete, deleteURL, nil, http.StatusNoContent, http.StatusOK); err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// RemoveCertification clears the certification flag on a definition.
func (c *Client) RemoveCertification(ctx context.Context, session domain.TableauSession, definitionID string) error {
	patchURL := fmt.Sprintf("%s/api/-/pulse/definitions/%s", session.ServerURL, url.PathEscape(definitionID))
	payload := map[string]any{
		"certification": map[string]bool{"is_certified": false},
	}
	if err := c.send(ctx, session, http.MethodPatch, patchURL, payload, http.StatusOK); err != nil {
		return fmt.Errorf("failed to remove certification from definition %s: %w", definitionID, err)
	}
	return nil
}

// UpdatePreferences applies a Pulse preference change. When userID differs
// from the session user it is carried in the payload, which requires admin
// capability upstream.
func (c *Client) UpdatePreferences(ctx context.Context, session domain.TableauSession, userID string, prefs domain.PreferenceUpdate) error {
	payload := map[string]any{}

	if prefs.Cadence != "" {
		payload["cadence"] = prefs.Cadence
	}

	var channels []map[string]string
	if prefs.EmailChannel != "" {
		channels = append(channels, map[string]string{
			"channel": "DELIVERY_CHANNEL_EMAIL",
			"status":  prefs.EmailChannel,
		})
	}
	if prefs.SlackChannel != "" {
		channels = append(channels, map[string]string{
			"channel": "DELIVERY_CHANNEL_SLACK",
			"status":  prefs.SlackChannel,
		})
	}
	if len(channels) > 0 {
		payload["channel_preferences_request"] = channels
	}

	grouping := map[string]string{}
	if prefs.GroupBy != "" {
		grouping["group_by"] = prefs.GroupBy
	}
	if prefs.SortOrder != "" {
		grouping["sort_order"] = prefs.SortOrder
	}
	if len(grouping) > 0 {
		payload["metric_grouping_preferences"] = grouping
	}

	if userID != "" && userID != session.UserID {
		payload["user_id"] = userID
	}

	if len(payload) == 0 {
		return fmt.Errorf("no preferences to update")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences payload: %w", err)
	}

	prefsURL := session.ServerURL + "/api/-/pulse/user/preferences"
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, prefsURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build preferences request: %w", err)
	}
	req.Header.Set(authHeader, session.Token)
	req.Header.Set("Content-Type", prefsReqType)
	req.Header.Set("Accept", prefsRespAccept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("preferences request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("preferences update failed with status %d", resp.StatusCode)
	}
	return nil
}

// atoi tolerates the string-typed pagination attributes the REST API returns.
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
