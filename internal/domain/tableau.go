package domain

import "time"

// AuthMethod selects how to sign in to the Tableau REST API.
type AuthMethod string

const (
	AuthMethodPAT      AuthMethod = "pat"
	AuthMethodPassword AuthMethod = "password"
)

// TCMCredential is the long-lived credential for the Tableau Cloud Manager
// control plane.
type TCMCredential struct {
	URI      string `json:"uri"`
	PATToken string `json:"pat_token"`
}

// TCMSession is a short-lived session against the TCM control plane. The URI
// is carried so subsequent calls can reach the same endpoint.
type TCMSession struct {
	URI          string
	SessionToken string
	TenantID     string
}

// TableauCredential is the credential for the Tableau REST / Pulse plane.
// SiteContentURL may be empty for the default site.
type TableauCredential struct {
	ServerURL      string     `json:"server_url"`
	SiteContentURL string     `json:"site_content_url"`
	APIVersion     string     `json:"api_version"`
	Method         AuthMethod `json:"method"`
	PATName        string     `json:"pat_name,omitempty"`
	PATSecret      string     `json:"pat_secret,omitempty"`
	Username       string     `json:"username,omitempty"`
	Password       string     `json:"password,omitempty"`
}

// TableauSession is an authenticated session against the Tableau REST API.
type TableauSession struct {
	ServerURL  string
	APIVersion string
	Token      string
	SiteID     string
	UserID     string
}

// User is one record from the site user directory.
type User struct {
	ID       string
	Name     string
	Email    string
	FullName string
	SiteRole string
}

// DisplayName prefers the account name and falls back to the email address.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Definition is a Pulse metric definition with its certification status.
type Definition struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Certified         bool   `json:"certified"`
	CertificationNote string `json:"certification_note,omitempty"`
	CertifiedBy       string `json:"certified_by,omitempty"`
	CertifiedAt       string `json:"certified_at,omitempty"`
}

// Metric is one Pulse scoped metric.
type Metric struct {
	ID           string
	Name         string
	DefinitionID string
}

// Subscription links a follower to a metric.
type Subscription struct {
	ID       string
	MetricID string
	UserID   string
}

// PreferenceUpdate describes a change to one user's Pulse notification
// preferences. Zero-valued fields are omitted from the upstream request.
type PreferenceUpdate struct {
	Cadence      string `json:"cadence,omitempty"`
	EmailChannel string `json:"email_channel,omitempty"`
	SlackChannel string `json:"slack_channel,omitempty"`
	GroupBy      string `json:"group_by,omitempty"`
	SortOrder    string `json:"sort_order,omitempty"`
}

// Empty reports whether the update carries no changes at all.
func (p PreferenceUpdate) Empty() bool {
	return p == PreferenceUpdate{}
}

// ActivityRequest is the operator's input to one activity pipeline run.
// The interval is half-open: [Start, End).
type ActivityRequest struct {
	TCM       TCMCredential     `json:"tcm"`
	SiteLUID  string            `json:"site_luid"`
	Tableau   TableauCredential `json:"tableau"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	EventType string            `json:"event_type,omitempty"`
}
