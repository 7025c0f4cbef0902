package usecase

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/user/pulse-ops/internal/domain"
)

const (
	operationFollow   = "FOLLOW_OPERATION_FOLLOW"
	operationUnfollow = "FOLLOW_OPERATION_UNFOLLOW"
)

// rawEvent is the wire shape of one activity-log line.
type rawEvent struct {
	EventType             string `json:"eventType"`
	ActorUserLuid         string `json:"actorUserLuid"`
	ScopedMetricID        string `json:"scopedMetricId"`
	SubscriptionOperation string `json:"subscriptionOperation"`
	Timestamp             string `json:"timestamp"`
}

type parseOutcome int

const (
	parsedOK parseOutcome = iota
	parsedSkip
	parsedFailure
)

// parseEventLine parses one NDJSON line. Lines that are not valid JSON or
// lack the actor/metric identifiers are failures; lines for other event
// types or with unrecognized operations are silently skipped.
func parseEventLine(line, wantEventType string) (domain.SubscriptionEvent, parseOutcome) {
	var raw rawEvent
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return domain.SubscriptionEvent{}, parsedFailure
	}

	if wantEventType != "" && raw.EventType != wantEventType {
		return domain.SubscriptionEvent{}, parsedSkip
	}
	if raw.ActorUserLuid == "" || raw.ScopedMetricID == "" {
		return domain.SubscriptionEvent{}, parsedFailure
	}

	var op domain.Operation
	switch raw.SubscriptionOperation {
	case operationFollow:
		op = domain.OperationFollow
	case operationUnfollow:
		op = domain.OperationUnfollow
	default:
		return domain.SubscriptionEvent{}, parsedSkip
	}

	ev := domain.SubscriptionEvent{
		ActorUserID: raw.ActorUserLuid,
		MetricID:    raw.ScopedMetricID,
		Operation:   op,
	}
	if raw.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
			ev.Timestamp = ts
		}
	}
	return ev, parsedOK
}

// reduceResult is the outcome of folding all downloaded log content.
type reduceResult struct {
	state         *domain.SubscriptionState
	applied       int
	parseFailures int
}

// reduceEvents parses the fetched files line by line and folds the events
// into a subscription state. By default events fold in arrival order across
// files; sortByTime re-sorts them by timestamp first, which changes the
// final state when the same (user, metric) pair is touched in several files.
func reduceEvents(files []domain.FetchedLog, wantEventType string, sortByTime bool) reduceResult {
	var events []domain.SubscriptionEvent
	failures := 0

	for _, f := range files {
		for _, line := range strings.Split(f.Content, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			ev, outcome := parseEventLine(line, wantEventType)
			switch outcome {
			case parsedOK:
				events = append(events, ev)
			case parsedFailure:
				failures++
			}
		}
	}

	if sortByTime {
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Timestamp.Before(events[j].Timestamp)
		})
	}

	state := domain.NewSubscriptionState()
	for _, ev := range events {
		state.Apply(ev)
	}

	return reduceResult{state: state, applied: len(events), parseFailures: failures}
}
