package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/user/pulse-ops/internal/adapter/metrics"
	"github.com/user/pulse-ops/internal/domain"
)

// ActivityReportConfig tunes the pipeline. Zero values are replaced by the
// listed defaults.
type ActivityReportConfig struct {
	MaxPagesPerRun          int     // default 50
	DownloadConcurrency     int     // default 4
	MetricLookupConcurrency int     // default 8
	MetricLookupRPS         float64 // default 10
	SortEventsByTime        bool
	DefaultEventType        string // default "metric_subscription_change"
}

func (c ActivityReportConfig) withDefaults() ActivityReportConfig {
	if c.MaxPagesPerRun <= 0 {
		c.MaxPagesPerRun = 50
	}
	if c.DownloadConcurrency <= 0 {
		c.DownloadConcurrency = 4
	}
	if c.MetricLookupConcurrency <= 0 {
		c.MetricLookupConcurrency = 8
	}
	if c.MetricLookupRPS <= 0 {
		c.MetricLookupRPS = 10
	}
	if c.DefaultEventType == "" {
		c.DefaultEventType = "metric_subscription_change"
	}
	return c
}

// ActivityReportUseCase orchestrates one run of the activity pipeline:
// authenticate, locate log objects, resolve and download them, fold the
// events into a subscription state, enrich IDs with display names, and emit
// the reports.
type ActivityReportUseCase struct {
	tcm     domain.TCMRepository
	tableau domain.TableauRepository
	pulse   domain.PulseRepository
	sink    domain.ReportSink
	runs    domain.RunRepository
	logger  *slog.Logger
	metrics *metrics.PipelineMetrics
	cfg     ActivityReportConfig
}

// NewActivityReportUseCase creates a new pipeline use case. metrics may be
// nil (e.g. in the CLI).
func NewActivityReportUseCase(
	tcm domain.TCMRepository,
	tableau domain.TableauRepository,
	pulse domain.PulseRepository,
	sink domain.ReportSink,
	runs domain.RunRepository,
	logger *slog.Logger,
	m *metrics.PipelineMetrics,
	cfg ActivityReportConfig,
) *ActivityReportUseCase {
	return &ActivityReportUseCase{
		tcm:     tcm,
		tableau: tableau,
		pulse:   pulse,
		sink:    sink,
		runs:    runs,
		logger:  logger.With("component", "activity_report"),
		metrics: m,
		cfg:     cfg.withDefaults(),
	}
}

// runTrace accumulates the operator-visible progress log of one run.
type runTrace struct {
	mu     sync.Mutex
	lines  []string
	logger *slog.Logger
}

func (t *runTrace) addf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	t.mu.Lock()
	t.lines = append(t.lines, line)
	t.mu.Unlock()
	t.logger.Info(line)
}

// Run executes the pipeline and always returns a result; fatal errors are
// folded into the result rather than returned.
func (uc *ActivityReportUseCase) Run(ctx context.Context, req domain.ActivityRequest) *domain.RunResult {
	result := &domain.RunResult{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	trace := &runTrace{logger: uc.logger.With("run_id", result.ID)}

	eventType := req.EventType
	if eventType == "" {
		eventType = uc.cfg.DefaultEventType
	}

	uc.execute(ctx, req, eventType, result, trace)

	result.Trace = trace.lines
	result.FinishedAt = time.Now().UTC()

	if uc.metrics != nil {
		uc.metrics.RunsTotal.WithLabelValues(string(result.Status)).Inc()
		uc.metrics.RunDuration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
		uc.metrics.FilesDownloadedTotal.Add(float64(result.Counters.FilesDownloaded))
		uc.metrics.FileFailuresTotal.Add(float64(result.Counters.FilesFailed))
		uc.metrics.ParseFailuresTotal.Add(float64(result.Counters.ParseFailures))
		uc.metrics.LookupFailuresTotal.Add(float64(result.Counters.LookupFailures))
	}

	if uc.runs != nil {
		if err := uc.runs.SaveRun(ctx, *result); err != nil {
			uc.logger.Warn("failed to save run result", "run_id", result.ID, "error", err)
		}
	}

	return result
}

// fail marks the run failed at the given stage.
func (uc *ActivityReportUseCase) fail(result *domain.RunResult, trace *runTrace, stage domain.Stage, err error) {
	perr := domain.NewPipelineError(stage, err)
	result.Status = domain.RunFailed
	result.FailedStage = stage
	result.Error = perr.Error()
	trace.addf("run failed at %s: %v", stage, err)
}

func (uc *ActivityReportUseCase) execute(ctx context.Context, req domain.ActivityRequest, eventType string, result *domain.RunResult, trace *runTrace) {
	// Stage 1: sessions. Both planes authenticate before any data access.
	tcmSession, err := uc.tcm.Login(ctx, req.TCM)
	if err != nil {
		uc.fail(result, trace, domain.StageAuthentication, fmt.Errorf("TCM login: %w", err))
		return
	}
	trace.addf("authenticated with TCM (tenant %s)", tcmSession.TenantID)

	tabSession, err := uc.tableau.SignIn(ctx, req.Tableau)
	if err != nil {
		uc.fail(result, trace, domain.StageAuthentication, fmt.Errorf("Tableau sign-in: %w", err))
		return
	}
	trace.addf("authenticated with Tableau (site %s)", tabSession.SiteID)

	// Stage 2: locators.
	locators, partial, err := uc.locateLogs(ctx, tcmSession, req.SiteLUID, req.Start, req.End, eventType, trace)
	if err != nil {
		uc.fail(result, trace, domain.StageLocatorListing, err)
		return
	}
	result.Partial = partial
	result.Counters.FilesFound = len(locators)
	trace.addf("found %d activity log files", len(locators))

	if len(locators) == 0 {
		// No matching events in range; emit a trivial report.
		uc.report(ctx, req, result, trace, domain.NewSubscriptionState(), nil, tabSession)
		return
	}

	// Stage 3: resolve and download.
	files := uc.fetchLogs(ctx, tcmSession, req.SiteLUID, locators, result, trace)
	if result.Status == domain.RunFailed {
		return
	}

	// Stage 4: reduce.
	reduced := reduceEvents(files, eventType, uc.cfg.SortEventsByTime)
	result.Counters.EventsProcessed = reduced.applied
	result.Counters.ParseFailures = reduced.parseFailures
	trace.addf("processed %d events (%d lines failed to parse)", reduced.applied, reduced.parseFailures)

	// Stage 5: enrichment and reports.
	uc.report(ctx, req, result, trace, reduced.state, files, tabSession)
}

// locateLogs partitions the range into chunks and pages through the listing
// endpoint. It returns the deduplicated locators in discovery order and
// whether the page ceiling cut the listing short.
func (uc *ActivityReportUseCase) locateLogs(ctx context.Context, session domain.TCMSession, siteLUID string, start, end time.Time, eventType string, trace *runTrace) ([]domain.LogLocator, bool, error) {
	chunks := domain.ChunkRange(start, end)

	var locators []domain.LogLocator
	seen := make(map[domain.LogLocator]struct{})
	totalPages := 0

	for i, chunk := range chunks {
		trace.addf("chunk %d/%d: %s to %s", i+1, len(chunks),
			chunk.Start.Format("2006-01-02"), chunk.End.Format("2006-01-02"))

		pageToken := ""
		firstPage := true
		for {
			if totalPages >= uc.cfg.MaxPagesPerRun {
				trace.addf("page ceiling of %d reached, returning partial listing", uc.cfg.MaxPagesPerRun)
				return locators, true, nil
			}

			page, err := uc.tcm.ListLocatorPage(ctx, session, siteLUID, chunk, pageToken)
			if errors.Is(err, domain.ErrPageAccessDenied) && !firstPage {
				// Pages past the first can 403 when the listing window is
				// exhausted; treat it as end-of-pagination.
				trace.addf("access denied on page %d of chunk %d, ending chunk", totalPages+1, i+1)
				break
			}
			if err != nil {
				return nil, false, fmt.Errorf("listing chunk %d: %w", i+1, err)
			}

			totalPages++
			matched := 0
			for _, loc := range page.Locators {
				if eventType != "" && !strings.Contains(string(loc), "/eventType="+eventType+"/") {
					continue
				}
				if _, dup := seen[loc]; dup {
					continue
				}
				seen[loc] = struct{}{}
				locators = append(locators, loc)
				matched++
			}
			trace.addf("  page %d: %d matching files", totalPages, matched)

			pageToken = page.NextPageToken
			firstPage = false
			if pageToken == "" {
				break
			}
		}
	}

	return locators, false, nil
}

// fetchLogs resolves all locators in one batched call and downloads the
// resolved URLs with bounded concurrency. Per-file failures are counted;
// only resolution failure is fatal.
func (uc *ActivityReportUseCase) fetchLogs(ctx context.Context, session domain.TCMSession, siteLUID string, locators []domain.LogLocator, result *domain.RunResult, trace *runTrace) []domain.FetchedLog {
	descriptors, err := uc.tcm.ResolveDownloadURLs(ctx, session, siteLUID, locators)
	if err != nil {
		uc.fail(result, trace, domain.StageURLResolution, err)
		return nil
	}

	urlByLocator := make(map[domain.LogLocator]string, len(descriptors))
	for _, d := range descriptors {
		if d.URL != "" {
			urlByLocator[d.Locator] = d.URL
		}
	}
	if len(urlByLocator) == 0 {
		uc.fail(result, trace, domain.StageURLResolution, fmt.Errorf("no download URLs resolved for %d locators", len(locators)))
		return nil
	}
	trace.addf("resolved %d of %d download URLs", len(urlByLocator), len(locators))

	// Download into a slice indexed by locator position so aggregation order
	// does not depend on completion order.
	contents := make([]string, len(locators))
	failed := make([]bool, len(locators))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.DownloadConcurrency)

	for i, loc := range locators {
		url, ok := urlByLocator[loc]
		if !ok {
			failed[i] = true
			continue
		}
		g.Go(func() error {
			content, err := uc.tcm.DownloadLogFile(gctx, url)
			if err != nil {
				uc.logger.Warn("file download failed", "locator", string(loc), "error", err)
				failed[i] = true
				return nil // soft failure
			}
			contents[i] = content
			return nil
		})
	}
	_ = g.Wait()

	var files []domain.FetchedLog
	for i, loc := range locators {
		if failed[i] {
			result.Counters.FilesFailed++
			continue
		}
		files = append(files, domain.FetchedLog{Locator: loc, Content: contents[i]})
	}
	result.Counters.FilesDownloaded = len(files)
	trace.addf("downloaded %d files (%d failed)", len(files), result.Counters.FilesFailed)

	return files
}

// report resolves display names and writes the raw log file and the two
// reports.
func (uc *ActivityReportUseCase) report(ctx context.Context, req domain.ActivityRequest, result *domain.RunResult, trace *runTrace, state *domain.SubscriptionState, files []domain.FetchedLog, session domain.TableauSession) {
	users := state.Users()
	metricIDs := state.Metrics()
	result.Counters.DistinctUsers = len(users)
	result.Counters.DistinctMetrics = len(metricIDs)
	trace.addf("state holds %d users and %d metrics", len(users), len(metricIDs))

	userNames := uc.resolveUserNames(ctx, session, trace)
	metricNames := uc.resolveMetricNames(ctx, session, metricIDs, result, trace)

	userRows := make([]domain.ReportRow, 0, len(users))
	userFailures := 0
	for _, id := range users {
		name, ok := userNames[id]
		if !ok || name == "" {
			name = id
			userFailures++
		}
		userRows = append(userRows, domain.ReportRow{DisplayName: name, Count: state.FollowingCount(id)})
	}
	if userFailures > 0 {
		result.Counters.LookupFailures += userFailures
		trace.addf("%d users kept their raw ID", userFailures)
	}
	metricRows := make([]domain.ReportRow, 0, len(metricIDs))
	for _, id := range metricIDs {
		name, ok := metricNames[id]
		if !ok || name == "" {
			name = id
		}
		metricRows = append(metricRows, domain.ReportRow{DisplayName: name, Count: state.FollowerCount(id)})
	}

	// Stable sort keeps ties in first-seen order.
	sort.SliceStable(userRows, func(i, j int) bool { return userRows[i].Count > userRows[j].Count })
	sort.SliceStable(metricRows, func(i, j int) bool { return metricRows[i].Count > metricRows[j].Count })

	header := domain.RawLogHeader{
		SiteLUID:  req.SiteLUID,
		Start:     req.Start.Format("2006-01-02"),
		End:       req.End.Format("2006-01-02"),
		FileCount: len(files),
	}

	rawPath, err := uc.sink.WriteRawLogs(ctx, header, files)
	if err != nil {
		uc.fail(result, trace, domain.StageReport, fmt.Errorf("raw log file: %w", err))
		return
	}
	userPath, err := uc.sink.WriteUserReport(ctx, userRows)
	if err != nil {
		uc.fail(result, trace, domain.StageReport, fmt.Errorf("user report: %w", err))
		return
	}
	metricPath, err := uc.sink.WriteMetricReport(ctx, metricRows)
	if err != nil {
		uc.fail(result, trace, domain.StageReport, fmt.Errorf("metric report: %w", err))
		return
	}

	result.ReportPaths = []string{rawPath, userPath, metricPath}
	trace.addf("reports written: %s, %s", userPath, metricPath)

	if result.Partial {
		result.Status = domain.RunPartial
	} else {
		result.Status = domain.RunSucceeded
	}
}

// resolveUserNames fetches the site user directory once. A directory failure
// is soft: every user falls back to its raw ID.
func (uc *ActivityReportUseCase) resolveUserNames(ctx context.Context, session domain.TableauSession, trace *runTrace) map[string]string {
	users, err := uc.tableau.ListUsers(ctx, session)
	if err != nil {
		uc.logger.Warn("failed to fetch user directory", "error", err)
		trace.addf("user directory unavailable, falling back to raw IDs")
		return nil
	}

	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.DisplayName()
	}
	trace.addf("fetched %d users from site directory", len(names))
	return names
}

// resolveMetricNames looks up each distinct metric through a bounded,
// rate-limited worker pool. There is no bulk metric listing upstream, so
// this is one call per metric; the definitions list serves as a fallback
// name source when a metric carries no name of its own.
func (uc *ActivityReportUseCase) resolveMetricNames(ctx context.Context, session domain.TableauSession, metricIDs []string, result *domain.RunResult, trace *runTrace) map[string]string {
	if len(metricIDs) == 0 {
		return nil
	}

	definitionNames := make(map[string]string)
	if defs, err := uc.pulse.ListDefinitions(ctx, session); err != nil {
		uc.logger.Warn("failed to fetch metric definitions", "error", err)
		trace.addf("definitions list unavailable, no fallback name source")
	} else {
		for _, d := range defs {
			if d.ID != "" && d.Name != "" {
				definitionNames[d.ID] = d.Name
			}
		}
		trace.addf("fetched %d metric definitions", len(definitionNames))
	}

	limiter := rate.NewLimiter(rate.Limit(uc.cfg.MetricLookupRPS), 1)

	var mu sync.Mutex
	names := make(map[string]string, len(metricIDs))
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.MetricLookupConcurrency)

	for _, id := range metricIDs {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}

			metric, err := uc.pulse.GetMetric(gctx, session, id)
			name := ""
			if err != nil {
				uc.logger.Warn("metric lookup failed", "metric_id", id, "error", err)
			} else {
				name = metric.Name
				if name == "" {
					name = definitionNames[metric.DefinitionID]
				}
			}

			mu.Lock()
			if name == "" {
				failures++
			} else {
				names[id] = name
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result.Counters.LookupFailures += failures
	trace.addf("resolved %d of %d metric names", len(names), len(metricIDs))
	return names
}
