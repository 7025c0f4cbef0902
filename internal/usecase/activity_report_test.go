package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/user/pulse-ops/internal/domain"
	"github.com/user/pulse-ops/internal/domain/mocks"
)

func testRequest() domain.ActivityRequest {
	return domain.ActivityRequest{
		TCM:      domain.TCMCredential{URI: "https://tcm.example.com", PATToken: "pat"},
		SiteLUID: "site-1",
		Tableau:  domain.TableauCredential{ServerURL: "https://tableau.example.com"},
		Start:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC),
	}
}

func locator(name string) domain.LogLocator {
	return domain.LogLocator("site-1/eventType=metric_subscription_change/" + name)
}

func eventLine(user, metric, op string) string {
	return `{"eventType":"metric_subscription_change","actorUserLuid":"` + user +
		`","scopedMetricId":"` + metric + `","subscriptionOperation":"` + op + `"}`
}

type pipelineMocks struct {
	tcm     *mocks.MockTCMRepository
	tableau *mocks.MockTableauRepository
	pulse   *mocks.MockPulseRepository
	sink    *mocks.MockReportSink
	runs    *mocks.MockRunRepository
}

func newPipeline(t *testing.T, m pipelineMocks, cfg ActivityReportConfig) *ActivityReportUseCase {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if m.tcm == nil {
		m.tcm = &mocks.MockTCMRepository{}
	}
	if m.tableau == nil {
		m.tableau = &mocks.MockTableauRepository{}
	}
	if m.pulse == nil {
		m.pulse = &mocks.MockPulseRepository{}
	}
	if m.sink == nil {
		m.sink = &mocks.MockReportSink{}
	}
	if m.runs == nil {
		m.runs = &mocks.MockRunRepository{}
	}
	return NewActivityReportUseCase(m.tcm, m.tableau, m.pulse, m.sink, m.runs, logger, nil, cfg)
}

func TestActivityReportUseCase_Run(t *testing.T) {
	t.Run("End To End", func(t *testing.T) {
		// Three files: u1 and u2 follow metrics, u1 later unfollows m1, one
		// malformed line. Final follower sets: m1 has u2, m2 has u1 and u2.
		contentByLocator := map[string]string{
			"f1": eventLine("u1", "m1", operationFollow) + "\n" +
				eventLine("u2", "m1", operationFollow),
			"f2": eventLine("u1", "m2", operationFollow) + "\n" +
				"garbage line\n" +
				eventLine("u2", "m2", operationFollow),
			"f3": eventLine("u1", "m1", operationUnfollow),
		}

		tcmMock := &mocks.MockTCMRepository{
			ListLocatorPageFunc: func(ctx context.Context, session domain.TCMSession, siteLUID string, chunk domain.DateChunk, pageToken string) (domain.LocatorPage, error) {
				return domain.LocatorPage{Locators: []domain.LogLocator{
					locator("f1"), locator("f2"), locator("f3"),
					"site-1/eventType=login/other", // filtered out
				}}, nil
			},
			ResolveFunc: func(ctx context.Context, session domain.TCMSession, siteLUID string, locators []domain.LogLocator) ([]domain.DownloadDescriptor, error) {
				var out []domain.DownloadDescriptor
				for _, l := range locators {
					out = append(out, domain.DownloadDescriptor{Locator: l, URL: "https://blob/" + string(l)})
				}
				return out, nil
			},
			DownloadFunc: func(ctx context.Context, url string) (string, error) {
				for name, content := range contentByLocator {
					if url == "https://blob/"+string(locator(name)) {
						return content, nil
					}
				}
				return "", errors.New("unknown url")
			},
		}
		tableauMock := &mocks.MockTableauRepository{
			ListUsersFunc: func(ctx context.Context, session domain.TableauSession) ([]domain.User, error) {
				return []domain.User{
					{ID: "u1", Name: "alice"},
					{ID: "u2", Email: "bob@example.com"},
				}, nil
			},
		}
		pulseMock := &mocks.MockPulseRepository{
			GetMetricFunc: func(ctx context.Context, session domain.TableauSession, metricID string) (domain.Metric, error) {
				return domain.Metric{ID: metricID, Name: "Metric " + metricID}, nil
			},
		}
		sink := &mocks.MockReportSink{}
		runs := &mocks.MockRunRepository{}

		uc := newPipeline(t, pipelineMocks{tcm: tcmMock, tableau: tableauMock, pulse: pulseMock, sink: sink, runs: runs}, ActivityReportConfig{})
		result := uc.Run(context.Background(), testRequest())

		if result.Status != domain.RunSucceeded {
			t.Fatalf("expected succeeded, got %s (%s)", result.Status, result.Error)
		}
		c := result.Counters
		if c.FilesFound != 3 || c.FilesDownloaded != 3 || c.FilesFailed != 0 {
			t.Errorf("unexpected file counters: %+v", c)
		}
		if c.EventsProcessed != 5 {
			t.Errorf("expected 5 events, got %d", c.EventsProcessed)
		}
		if c.ParseFailures != 1 {
			t.Errorf("expected 1 parse failure, got %d", c.ParseFailures)
		}
		if c.DistinctUsers != 2 || c.DistinctMetrics != 2 {
			t.Errorf("unexpected distinct counts: %+v", c)
		}

		// Metric report sorted by follower count descending.
		if len(sink.MetricRows) != 2 {
			t.Fatalf("expected 2 metric rows, got %d", len(sink.MetricRows))
		}
		if sink.MetricRows[0].DisplayName != "Metric m2" || sink.MetricRows[0].Count != 2 {
			t.Errorf("unexpected top metric row: %+v", sink.MetricRows[0])
		}
		if sink.MetricRows[1].DisplayName != "Metric m1" || sink.MetricRows[1].Count != 1 {
			t.Errorf("unexpected second metric row: %+v", sink.MetricRows[1])
		}

		// Users resolve through the directory, with email fallback.
		if len(sink.UserRows) != 2 {
			t.Fatalf("expected 2 user rows, got %d", len(sink.UserRows))
		}
		if sink.UserRows[0].DisplayName != "bob@example.com" || sink.UserRows[0].Count != 2 {
			t.Errorf("unexpected top user row: %+v", sink.UserRows[0])
		}
		if sink.UserRows[1].DisplayName != "alice" || sink.UserRows[1].Count != 1 {
			t.Errorf("unexpected second user row: %+v", sink.UserRows[1])
		}

		if len(result.ReportPaths) != 3 {
			t.Errorf("expected 3 report paths, got %v", result.ReportPaths)
		}
		if _, ok := runs.Runs[result.ID]; !ok {
			t.Error("expected run to be saved")
		}
	})

	t.Run("TCM Login Failure Is Fatal", func(t *testing.T) {
		tcmMock := &mocks.MockTCMRepository{
			LoginFunc: func(ctx context.Context, cred domain.TCMCredential) (domain.TCMSession, error) {
				return domain.TCMSession{}, errors.New("bad token")
			},
		}
		uc := newPipeline(t, pipelineMocks{tcm: tcmMock}, ActivityReportConfig{})
		result := uc.Run(context.Background(), testRequest())

		if result.Status != domain.RunFailed {
			t.Fatalf("expected failed, got %s", result.Status)
		}
		if result.FailedStage != domain.StageAuthentication {
			t.Errorf("expected authentication stage, got %s", result.FailedStage)
		}
	})

	t.Run("Tableau SignIn Failure Is Fatal", func(t *testing.T) {
		tableauMock := &mocks.MockTableauRepository{
			SignInFunc: func(ctx context.Context, cred domain.TableauCredential) (domain.TableauSession, error) {
				return domain.TableauSession{}, errors.New("invalid credentials")
			},
		}
		uc := newPipeline(t, pipelineMocks{tableau: tableauMock}, ActivityReportConfig{})
		result := uc.Run(context.Background(), testRequest())

		if result.Status != domain.RunFailed || result.FailedStage != domain.StageAuthentication {
			t.Errorf("expected authentication failure, got %s at %s", result.Status, result.FailedStage)
		}
	})

	t.Run("No Locators Yields Empty Success", func(t *testing.T) {
		sink := &mocks.MockReportSink{}
		uc := newPipeline(t, pipelineMocks{sink: sink}, ActivityReportConfig{})
		result := uc.Run(context.Background(), testRequest())

		if result.Status != domain.RunSucceeded {
			t.Fatalf("expected succeeded, got %s (%s)", result.Status, result.Error)
		}
		if len(sink.UserRows) != 0 || len(sink.MetricRows) != 0 {
			t.Error("expected empty reports")
		}
		if len(result.ReportPaths) != 3 {
			t.Errorf("expected 3 report paths even when empty, got %v", result.ReportPaths)
		}
	})

	t.Run("Page Ceiling Marks Run Partial", func(t *testing.T) {
		page := 0
		tcmMock := &mocks.MockTCMRepository{
			ListLocatorPageFunc: func(ctx context.Context, session domain.TCMSession, siteLUID string, chunk domain.DateChunk, pageToken string) (domain.LocatorPage, error) {
				page++
				return domain.LocatorPage{
					Locators:      []domain.LogLocator{locator(fmt.Sprintf("f%d", page))},
					NextPageToken: "more",
				}, nil
			},
			ResolveFunc: func(ctx context.Context, session domain.TCMSession, siteLUID string, locators []domain.LogLocator) ([]domain.DownloadDescriptor, error) {
				var out []domain.DownloadDescriptor
				for _, l := range locators {
					out = append(out, domain.DownloadDescriptor{Locator: l, URL: "https://blob/x"})
				}
				return out, nil
			},
			DownloadFunc: func(ctx context.Context, url string) (string, error) {
				return "", nil
			},
		}
		uc := newPipeline(t, pipelineMocks{tcm: tcmMock}, ActivityReportConfig{MaxPagesPerRun: 3})
		result := uc.Run(context.Background(), testRequest())

		if result.Status != domain.RunPartial {
			t.Fatalf("expected partial, got %s (%s)", result.Status, result.Error)
		}
		if !result.Partial {
			t.Error("expected partial flag")
		}
		if page != 3 {
			t.Errorf("expected exactly 3 pages fetched, got %d", page)
		}
	})

	t.Run("Access Denied After First Page Ends Chunk", func(t *testing.T) {
		calls := 0
		tcmMock := &mocks.MockTCMRepository{
			ListLocatorPageFunc: func(ctx context.Context, session domain.TCMSession, siteLUID string, chunk domain.DateChunk, pageToken string) (domain.LocatorPage, error) {
				calls++
				if pageToken != "" {
					return domain.LocatorPage{}, domain.ErrPageAccessDenied
				}
				return domain.LocatorPage{
					Locators:      []domain.LogLocator{locator("f1")},
					NextPageToken: "p2",
				}, nil
			},
			ResolveFunc: func(ctx context.Context, session domain.TCMSession, siteLUID string, locators []domain.LogLocator) ([]domain.DownloadDescriptor, error) {
				return []domain.DownloadDescriptor{{Locator: locators[0], URL: "https://blob/f1"}}, nil
			},
			DownloadFunc: func(ctx context.Context, url string) (string, error) {
				return eventLine("u1", "m1", operationFollow), nil
			},
		}
		uc := newPipeline(t, pipelineMocks{tcm: tcmMock}, ActivityReportConfig{})
		result := uc.Run(context.Background(), testRequest())

		if result.Status != domain.RunSucceeded {
			t.Fatalf("expected succeeded, got %s (%s)", result.Status, result.Error)
		}
		if result.Counters.FilesDownloaded != 1 {
			t.Errorf("expected 1 file downloaded, got %d", result.Counters.FilesDownloaded)
		}
	})

	t.Run("Access Denied On First Page Is Fatal", func(t *testing.T) {
		tcmMock := &mocks.MockTCMRepository{
			ListLocatorPageFunc: func(ctx context.Context, session domain.TCMSession, siteLUID string, chunk domain.DateChunk, pageToken string) (domain.LocatorPage, error) {
				return domain.LocatorPage{}, domain.ErrPageAccessDenied
			},
		}
		uc := newPipeline(t, pipelineMocks{tcm: tcmMock}, ActivityReportConfig{})
		result := uc.Run(context.Background(), testRequest())

		if result.Status != domain.RunFailed || result.FailedStage != domain.StageLocatorListing {
			t.Errorf("expected listing failure, got %s at %s", result.Status, result.FailedStage)
		}
	})

	t.Run("Resolution Failure Is Fatal", func(t *testing.T) {
		tcmMock := &mocks.MockTCMRepository{
			ListLocatorPageFunc: func(ctx context.Context, session domain.TCMSession, siteLUID string, chunk domain.DateChunk, pageToken string) (domain.LocatorPage, error) {
				return domain.LocatorPage{Locators: []domain.LogLocator{locator("f1")}}, nil
			},
			ResolveFunc: func(ctx context.Context, session domain.TCMSession, siteLUID string, locators []domain.LogLocator) ([]domain.DownloadDescriptor, error) {
				return nil, errors.New("upstream 500")
			},
		}
		uc := newPipeline(t, pipelineMocks{tcm: tcmMock}, ActivityReportConfig{})
		result := uc.Run(context.Background(), testRequest())

		if result.Status != domain.RunFailed || result.FailedStage != domain.StageURLResolution {
			t.Errorf("expected resolution failure, got %s at %s", result.Status, result.FailedStage)
		}
	})

	t.Run("Missing And Failing URLs Are Soft Failures", func(t *testing.T) {
		tcmMock := &mocks.MockTCMRepository{
			ListLocatorPageFunc: func(ctx context.Context, session domain.TCMSession, siteLUID string, chunk domain.DateChunk, pageToken string) (domain.LocatorPage, error) {
				return domain.LocatorPage{Locators: []domain.LogLocator{
					locator("f1"), locator("f2"), locator("f3"),
				}}, nil
			},
			ResolveFunc: func(ctx context.Context, session domain.TCMSession, siteLUID string, locators []domain.LogLocator) ([]domain.DownloadDescriptor, error) {
				// f2 never resolves; f3 resolves but its download fails.
				return []domain.DownloadDescriptor{
					{Locator: locator("f1"), URL: "https://blob/f1"},
					{Locator: locator("f3"), URL: "https://blob/f3"},
				}, nil
			},
			DownloadFunc: func(ctx context.Context, url string) (string, error) {
				if url == "https://blob/f3" {
					return "", errors.New("expired url")
				}
				return eventLine("u1", "m1", operationFollow), nil
			},
		}
		uc := newPipeline(t, pipelineMocks{tcm: tcmMock}, ActivityReportConfig{})
		result := uc.Run(context.Background(), testRequest())

		if result.Status != domain.RunSucceeded {
			t.Fatalf("expected succeeded, got %s (%s)", result.Status, result.Error)
		}
		if result.Counters.FilesFailed != 2 {
			t.Errorf("expected 2 failed files, got %d", result.Counters.FilesFailed)
		}
		if result.Counters.FilesDownloaded != 1 {
			t.Errorf("expected 1 downloaded file, got %d", result.Counters.FilesDownloaded)
		}
	})

	t.Run("Directory Failure Falls Back To Raw IDs", func(t *testing.T) {
		tcmMock := singleFileTCM(eventLine("u1", "m1", operationFollow))
		tableauMock := &mocks.MockTableauRepository{
			ListUsersFunc: func(ctx context.Context, session domain.TableauSession) ([]domain.User, error) {
				return nil, errors.New("directory unavailable")
			},
		}
		pulseMock := &mocks.MockPulseRepository{
			GetMetricFunc: func(ctx context.Context, session domain.TableauSession, metricID string) (domain.Metric, error) {
				return domain.Metric{}, errors.New("metric gone")
			},
		}
		sink := &mocks.MockReportSink{}

		uc := newPipeline(t, pipelineMocks{tcm: tcmMock, tableau: tableauMock, pulse: pulseMock, sink: sink}, ActivityReportConfig{})
		result := uc.Run(context.Background(), testRequest())

		if result.Status != domain.RunSucceeded {
			t.Fatalf("expected succeeded, got %s (%s)", result.Status, result.Error)
		}
		if sink.UserRows[0].DisplayName != "u1" {
			t.Errorf("expected raw user ID, got %q", sink.UserRows[0].DisplayName)
		}
		if sink.MetricRows[0].DisplayName != "m1" {
			t.Errorf("expected raw metric ID, got %q", sink.MetricRows[0].DisplayName)
		}
		// One failed user and one failed metric.
		if result.Counters.LookupFailures != 2 {
			t.Errorf("expected 2 lookup failures, got %d", result.Counters.LookupFailures)
		}
	})

	t.Run("Missing Directory Entry Counts As Lookup Failure", func(t *testing.T) {
		tcmMock := singleFileTCM(eventLine("u1", "m1", operationFollow) + "\n" +
			eventLine("u2", "m1", operationFollow))
		tableauMock := &mocks.MockTableauRepository{
			ListUsersFunc: func(ctx context.Context, session domain.TableauSession) ([]domain.User, error) {
				return []domain.User{{ID: "u1", Name: "alice"}}, nil
			},
		}
		pulseMock := &mocks.MockPulseRepository{
			GetMetricFunc: func(ctx context.Context, session domain.TableauSession, metricID string) (domain.Metric, error) {
				return domain.Metric{ID: metricID, Name: "Metric " + metricID}, nil
			},
		}
		sink := &mocks.MockReportSink{}

		uc := newPipeline(t, pipelineMocks{tcm: tcmMock, tableau: tableauMock, pulse: pulseMock, sink: sink}, ActivityReportConfig{})
		result := uc.Run(context.Background(), testRequest())

		if result.Status != domain.RunSucceeded {
			t.Fatalf("expected succeeded, got %s (%s)", result.Status, result.Error)
		}
		if sink.UserRows[1].DisplayName != "u2" {
			t.Errorf("expected raw ID for the unknown user, got %q", sink.UserRows[1].DisplayName)
		}
		if result.Counters.LookupFailures != 1 {
			t.Errorf("expected 1 lookup failure, got %d", result.Counters.LookupFailures)
		}
	})

	t.Run("Metric Name Falls Back To Definition", func(t *testing.T) {
		tcmMock := singleFileTCM(eventLine("u1", "m1", operationFollow))
		pulseMock := &mocks.MockPulseRepository{
			ListDefinitionsFunc: func(ctx context.Context, session domain.TableauSession) ([]domain.Definition, error) {
				return []domain.Definition{{ID: "d1", Name: "Weekly Revenue"}}, nil
			},
			GetMetricFunc: func(ctx context.Context, session domain.TableauSession, metricID string) (domain.Metric, error) {
				return domain.Metric{ID: metricID, DefinitionID: "d1"}, nil
			},
		}
		sink := &mocks.MockReportSink{}

		uc := newPipeline(t, pipelineMocks{tcm: tcmMock, pulse: pulseMock, sink: sink}, ActivityReportConfig{})
		result := uc.Run(context.Background(), testRequest())

		if result.Status != domain.RunSucceeded {
			t.Fatalf("expected succeeded, got %s (%s)", result.Status, result.Error)
		}
		if sink.MetricRows[0].DisplayName != "Weekly Revenue" {
			t.Errorf("expected definition name, got %q", sink.MetricRows[0].DisplayName)
		}
	})

	t.Run("Report Write Failure Is Fatal", func(t *testing.T) {
		tcmMock := singleFileTCM(eventLine("u1", "m1", operationFollow))
		sink := &mocks.MockReportSink{UserErr: errors.New("disk full")}

		uc := newPipeline(t, pipelineMocks{tcm: tcmMock, sink: sink}, ActivityReportConfig{})
		result := uc.Run(context.Background(), testRequest())

		if result.Status != domain.RunFailed || result.FailedStage != domain.StageReport {
			t.Errorf("expected report failure, got %s at %s", result.Status, result.FailedStage)
		}
	})
}

// singleFileTCM is a TCM mock serving exactly one file with the given
// content.
func singleFileTCM(content string) *mocks.MockTCMRepository {
	return &mocks.MockTCMRepository{
		ListLocatorPageFunc: func(ctx context.Context, session domain.TCMSession, siteLUID string, chunk domain.DateChunk, pageToken string) (domain.LocatorPage, error) {
			if pageToken != "" {
				return domain.LocatorPage{}, nil
			}
			return domain.LocatorPage{Locators: []domain.LogLocator{locator("f1")}}, nil
		},
		ResolveFunc: func(ctx context.Context, session domain.TCMSession, siteLUID string, locators []domain.LogLocator) ([]domain.DownloadDescriptor, error) {
			return []domain.DownloadDescriptor{{Locator: locator("f1"), URL: "https://blob/f1"}}, nil
		},
		DownloadFunc: func(ctx context.Context, url string) (string, error) {
			return content, nil
		},
	}
}
