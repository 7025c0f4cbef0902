package domain

import (
	"context"
	"errors"
)

// ErrPageAccessDenied signals a 403 from the activity-log listing endpoint.
// On any page after the first of a chunk this is treated as an implicit
// end-of-pagination rather than a failure.
var ErrPageAccessDenied = errors.New("access denied for activity log page")

// ErrRunNotFound is returned when a run ID is unknown to the run history.
var ErrRunNotFound = errors.New("run not found")

// LocatorPage is one page of the activity-log listing.
type LocatorPage struct {
	Locators      []LogLocator
	NextPageToken string
}

// TCMRepository is the Tableau Cloud Manager control plane: session
// establishment, locator listing, URL resolution and raw object fetch.
type TCMRepository interface {
	// Login exchanges a PAT for a short-lived session token and tenant ID.
	Login(ctx context.Context, cred TCMCredential) (TCMSession, error)

	// ListLocatorPage returns one page of locators for the chunk. An empty
	// pageToken requests the first page.
	ListLocatorPage(ctx context.Context, session TCMSession, siteLUID string, chunk DateChunk, pageToken string) (LocatorPage, error)

	// ResolveDownloadURLs resolves locators to pre-authorized URLs in a
	// single batched request. Entries may be returned in any order and
	// unresolvable locators may be omitted.
	ResolveDownloadURLs(ctx context.Context, session TCMSession, siteLUID string, locators []LogLocator) ([]DownloadDescriptor, error)

	// DownloadLogFile fetches one resolved URL anonymously.
	DownloadLogFile(ctx context.Context, url string) (string, error)
}

// TableauRepository is the Tableau REST API identity plane.
type TableauRepository interface {
	// SignIn authenticates and returns a session scoped to the resolved site.
	SignIn(ctx context.Context, cred TableauCredential) (TableauSession, error)

	// ListUsers fetches the complete site user directory, paginating
	// internally.
	ListUsers(ctx context.Context, session TableauSession) ([]User, error)
}

// PulseRepository covers the Pulse metrics plane: definitions, metrics,
// subscriptions, certification and notification preferences.
type PulseRepository interface {
	// ListDefinitions fetches all metric definitions, paginating internally.
	ListDefinitions(ctx context.Context, session TableauSession) ([]Definition, error)

	// GetMetric fetches one scoped metric's detail.
	GetMetric(ctx context.Context, session TableauSession, metricID string) (Metric, error)

	// ListSubscriptions returns the current followers of a metric.
	ListSubscriptions(ctx context.Context, session TableauSession, metricID string) ([]Subscription, error)

	// BatchCreateSubscriptions adds the users as followers of the metric in
	// one request.
	BatchCreateSubscriptions(ctx context.Context, session TableauSession, metricID string, userIDs []string) error

	// DeleteSubscription removes one follower subscription.
	DeleteSubscription(ctx context.Context, session TableauSession, subscriptionID string) error

	// RemoveCertification clears the certification flag on a definition.
	RemoveCertification(ctx context.Context, session TableauSession, definitionID string) error

	// UpdatePreferences applies a preference change for the given user.
	// userID may be empty when the caller updates their own preferences.
	UpdatePreferences(ctx context.Context, session TableauSession, userID string, prefs PreferenceUpdate) error
}

// ReportRow is one output row: a resolved display name and a count.
type ReportRow struct {
	DisplayName string `json:"display_name"`
	Count       int    `json:"count"`
}

// RawLogHeader describes the raw-log audit file written alongside the
// reports.
type RawLogHeader struct {
	SiteLUID  string
	Start     string
	End       string
	FileCount int
}

// ReportSink writes the pipeline's outputs: two delimited tabular reports and
// the raw concatenated log text for audit purposes.
type ReportSink interface {
	WriteUserReport(ctx context.Context, rows []ReportRow) (string, error)
	WriteMetricReport(ctx context.Context, rows []ReportRow) (string, error)
	WriteRawLogs(ctx context.Context, header RawLogHeader, files []FetchedLog) (string, error)
}

// RunRepository retains completed run results for operator retrieval.
type RunRepository interface {
	SaveRun(ctx context.Context, result RunResult) error
	GetRun(ctx context.Context, id string) (*RunResult, error)
}

// APIKeyRepository validates operator API keys for the HTTP surface.
type APIKeyRepository interface {
	IsValid(ctx context.Context, key string) (bool, error)
}
