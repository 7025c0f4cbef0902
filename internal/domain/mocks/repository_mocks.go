package mocks

import (
	"context"
	"sync"

	"github.com/user/pulse-ops/internal/domain"
)

// MockTCMRepository is a mock implementation of domain.TCMRepository for
// testing. Behavior is injected through function fields; unset fields return
// zero values.
type MockTCMRepository struct {
	LoginFunc           func(ctx context.Context, cred domain.TCMCredential) (domain.TCMSession, error)
	ListLocatorPageFunc func(ctx context.Context, session domain.TCMSession, siteLUID string, chunk domain.DateChunk, pageToken string) (domain.LocatorPage, error)
	ResolveFunc         func(ctx context.Context, session domain.TCMSession, siteLUID string, locators []domain.LogLocator) ([]domain.DownloadDescriptor, error)
	DownloadFunc        func(ctx context.Context, url string) (string, error)
}

func (m *MockTCMRepository) Login(ctx context.Context, cred domain.TCMCredential) (domain.TCMSession, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, cred)
	}
	return domain.TCMSession{SessionToken: "session", TenantID: "tenant"}, nil
}

func (m *MockTCMRepository) ListLocatorPage(ctx context.Context, session domain.TCMSession, siteLUID string, chunk domain.DateChunk, pageToken string) (domain.LocatorPage, error) {
	if m.ListLocatorPageFunc != nil {
		return m.ListLocatorPageFunc(ctx, session, siteLUID, chunk, pageToken)
	}
	return domain.LocatorPage{}, nil
}

func (m *MockTCMRepository) ResolveDownloadURLs(ctx context.Context, session domain.TCMSession, siteLUID string, locators []domain.LogLocator) ([]domain.DownloadDescriptor, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, session, siteLUID, locators)
	}
	return nil, nil
}

func (m *MockTCMRepository) DownloadLogFile(ctx context.Context, url string) (string, error) {
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, url)
	}
	return "", nil
}

// MockTableauRepository is a mock implementation of domain.TableauRepository.
type MockTableauRepository struct {
	SignInFunc    func(ctx context.Context, cred domain.TableauCredential) (domain.TableauSession, error)
	ListUsersFunc func(ctx context.Context, session domain.TableauSession) ([]domain.User, error)
}

func (m *MockTableauRepository) SignIn(ctx context.Context, cred domain.TableauCredential) (domain.TableauSession, error) {
	if m.SignInFunc != nil {
		return m.SignInFunc(ctx, cred)
	}
	return domain.TableauSession{Token: "token", SiteID: "site"}, nil
}

func (m *MockTableauRepository) ListUsers(ctx context.Context, session domain.TableauSession) ([]domain.User, error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx, session)
	}
	return nil, nil
}

// MockPulseRepository is a mock implementation of domain.PulseRepository. In
// addition to the function fields it records mutating calls for assertions.
type MockPulseRepository struct {
	mu sync.Mutex

	ListDefinitionsFunc func(ctx context.Context, session domain.TableauSession) ([]domain.Definition, error)
	GetMetricFunc       func(ctx context.Context, session domain.TableauSession, metricID string) (domain.Metric, error)
	ListSubsFunc        func(ctx context.Context, session domain.TableauSession, metricID string) ([]domain.Subscription, error)
	BatchCreateErr      error
	DeleteErr           error
	RemoveCertErr       error
	UpdatePrefsErr      error

	BatchCreatedUserIDs []string
	DeletedSubIDs       []string
	RemovedCertDefIDs   []string
	UpdatedPrefUserIDs  []string
}

func (m *MockPulseRepository) ListDefinitions(ctx context.Context, session domain.TableauSession) ([]domain.Definition, error) {
	if m.ListDefinitionsFunc != nil {
		return m.ListDefinitionsFunc(ctx, session)
	}
	return nil, nil
}

func (m *MockPulseRepository) GetMetric(ctx context.Context, session domain.TableauSession, metricID string) (domain.Metric, error) {
	if m.GetMetricFunc != nil {
		return m.GetMetricFunc(ctx, session, metricID)
	}
	return domain.Metric{ID: metricID}, nil
}

func (m *MockPulseRepository) ListSubscriptions(ctx context.Context, session domain.TableauSession, metricID string) ([]domain.Subscription, error) {
	if m.ListSubsFunc != nil {
		return m.ListSubsFunc(ctx, session, metricID)
	}
	return nil, nil
}

func (m *MockPulseRepository) BatchCreateSubscriptions(ctx context.Context, session domain.TableauSession, metricID string, userIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BatchCreateErr != nil {
		return m.BatchCreateErr
	}
	m.BatchCreatedUserIDs = append(m.BatchCreatedUserIDs, userIDs...)
	return nil
}

func (m *MockPulseRepository) DeleteSubscription(ctx context.Context, session domain.TableauSession, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.DeletedSubIDs = append(m.DeletedSubIDs, subscriptionID)
	return nil
}

func (m *MockPulseRepository) RemoveCertification(ctx context.Context, session domain.TableauSession, definitionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveCertErr != nil {
		return m.RemoveCertErr
	}
	m.RemovedCertDefIDs = append(m.RemovedCertDefIDs, definitionID)
	return nil
}

func (m *MockPulseRepository) UpdatePreferences(ctx context.Context, session domain.TableauSession, userID string, prefs domain.PreferenceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdatePrefsErr != nil {
		return m.UpdatePrefsErr
	}
	m.UpdatedPrefUserIDs = append(m.UpdatedPrefUserIDs, userID)
	return nil
}

// MockReportSink records written reports in memory.
type MockReportSink struct {
	mu sync.Mutex

	UserRows   []domain.ReportRow
	MetricRows []domain.ReportRow
	RawHeader  domain.RawLogHeader
	RawFiles   []domain.FetchedLog

	UserErr   error
	MetricErr error
	RawErr    error
}

func (m *MockReportSink) WriteUserReport(ctx context.Context, rows []domain.ReportRow) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UserErr != nil {
		return "", m.UserErr
	}
	m.UserRows = rows
	return "user_report.csv", nil
}

func (m *MockReportSink) WriteMetricReport(ctx context.Context, rows []domain.ReportRow) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MetricErr != nil {
		return "", m.MetricErr
	}
	m.MetricRows = rows
	return "metric_report.csv", nil
}

func (m *MockReportSink) WriteRawLogs(ctx context.Context, header domain.RawLogHeader, files []domain.FetchedLog) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RawErr != nil {
		return "", m.RawErr
	}
	m.RawHeader = header
	m.RawFiles = files
	return "raw_logs.txt", nil
}

// MockRunRepository stores run results in memory.
type MockRunRepository struct {
	mu   sync.Mutex
	Runs map[string]domain.RunResult

	SaveErr error
}

func (m *MockRunRepository) SaveRun(ctx context.Context, result domain.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if m.Runs == nil {
		m.Runs = make(map[string]domain.RunResult)
	}
	m.Runs[result.ID] = result
	return nil
}

func (m *MockRunRepository) GetRun(ctx context.Context, id string) (*domain.RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.Runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return &result, nil
}
