package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/user/pulse-ops/internal/adapter/report"
	"github.com/user/pulse-ops/internal/adapter/tableau"
	"github.com/user/pulse-ops/internal/adapter/tcm"
	"github.com/user/pulse-ops/internal/domain"
	"github.com/user/pulse-ops/internal/pkg/config"
	"github.com/user/pulse-ops/internal/pkg/logger"
	"github.com/user/pulse-ops/internal/usecase"
)

const dateLayout = "2006-01-02"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req, err := promptRequest(bufio.NewReader(os.Stdin))
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n%v\n", err)
		os.Exit(1)
	}

	sink, err := report.NewFileSink(cfg.OutputDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot create output directory: %v\n", err)
		os.Exit(1)
	}

	tableauClient := tableau.NewClient(logger)
	uc := usecase.NewActivityReportUseCase(
		tcm.NewClient(logger), tableauClient, tableauClient, sink, nil, logger, nil,
		usecase.ActivityReportConfig{
			MaxPagesPerRun:          cfg.MaxPagesPerRun,
			DownloadConcurrency:     cfg.DownloadConcurrency,
			MetricLookupConcurrency: cfg.MetricLookupConcurrency,
			MetricLookupRPS:         cfg.MetricLookupRPS,
			SortEventsByTime:        cfg.SortEventsByTime,
			DefaultEventType:        cfg.DefaultEventType,
		},
	)

	fmt.Println("\nRunning activity pipeline...")
	result := uc.Run(ctx, *req)

	printResult(result)
	if result.Status == domain.RunFailed {
		os.Exit(1)
	}
}

func promptRequest(in *bufio.Reader) (*domain.ActivityRequest, error) {
	fmt.Println("=== TCM Activity Report ===")

	uri, err := promptLine(in, "TCM URI (e.g. https://us-west-2a.online.tableau.com)")
	if err != nil {
		return nil, err
	}
	pat, err := promptSecret(in, "TCM personal access token")
	if err != nil {
		return nil, err
	}
	siteLUID, err := promptLine(in, "Site LUID")
	if err != nil {
		return nil, err
	}

	fmt.Println("\n--- Tableau REST credentials ---")
	serverURL, err := promptLine(in, "Tableau server URL")
	if err != nil {
		return nil, err
	}
	siteContentURL, err := promptOptional(in, "Site content URL (blank for default site)")
	if err != nil {
		return nil, err
	}

	cred := domain.TableauCredential{
		ServerURL:      serverURL,
		SiteContentURL: siteContentURL,
	}

	method, err := promptOptional(in, "Auth method [pat/password] (default pat)")
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(method) {
	case "", "pat":
		cred.Method = domain.AuthMethodPAT
		if cred.PATName, err = promptLine(in, "PAT name"); err != nil {
			return nil, err
		}
		if cred.PATSecret, err = promptSecret(in, "PAT secret"); err != nil {
			return nil, err
		}
	case "password":
		cred.Method = domain.AuthMethodPassword
		if cred.Username, err = promptLine(in, "Username"); err != nil {
			return nil, err
		}
		if cred.Password, err = promptSecret(in, "Password"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown auth method %q", method)
	}

	fmt.Println("\n--- Date range (half-open, end date excluded) ---")
	start, err := promptDate(in, "Start date (YYYY-MM-DD)")
	if err != nil {
		return nil, err
	}
	end, err := promptDate(in, "End date (YYYY-MM-DD)")
	if err != nil {
		return nil, err
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("start date must be before end date")
	}

	return &domain.ActivityRequest{
		TCM:      domain.TCMCredential{URI: uri, PATToken: pat},
		SiteLUID: siteLUID,
		Tableau:  cred,
		Start:    start,
		End:      end,
	}, nil
}

func promptLine(in *bufio.Reader, label string) (string, error) {
	for {
		value, err := promptOptional(in, label)
		if err != nil {
			return "", err
		}
		if value != "" {
			return value, nil
		}
		fmt.Println("a value is required")
	}
}

func promptOptional(in *bufio.Reader, label string) (string, error) {
	fmt.Printf("%s: ", label)
	line, err := in.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("input aborted: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo when stdin is a terminal. With piped input
// it must read from the shared reader, which already holds buffered stdin.
func promptSecret(in *bufio.Reader, label string) (string, error) {
	fmt.Printf("%s: ", label)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := in.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("input aborted: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	secret, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("input aborted: %w", err)
	}
	value := strings.TrimSpace(string(secret))
	if value == "" {
		return "", fmt.Errorf("a value is required")
	}
	return value, nil
}

func promptDate(in *bufio.Reader, label string) (time.Time, error) {
	for {
		value, err := promptLine(in, label)
		if err != nil {
			return time.Time{}, err
		}
		ts, err := time.Parse(dateLayout, value)
		if err == nil {
			return ts, nil
		}
		fmt.Println("dates must be YYYY-MM-DD")
	}
}

func printResult(result *domain.RunResult) {
	fmt.Printf("\nRun %s finished: %s\n", result.ID, result.Status)
	if result.Error != "" {
		fmt.Printf("  error: %s\n", result.Error)
	}
	if result.Partial {
		fmt.Println("  note: listing hit the page ceiling, results are partial")
	}

	c := result.Counters
	fmt.Printf("\nFiles:   %d found, %d downloaded, %d failed\n", c.FilesFound, c.FilesDownloaded, c.FilesFailed)
	fmt.Printf("Events:  %d processed, %d parse failures\n", c.EventsProcessed, c.ParseFailures)
	fmt.Printf("Names:   %d users, %d metrics, %d lookups failed\n", c.DistinctUsers, c.DistinctMetrics, c.LookupFailures)

	if len(result.ReportPaths) > 0 {
		fmt.Println("\nReports:")
		for _, p := range result.ReportPaths {
			fmt.Printf("  %s\n", p)
		}
	}
}
