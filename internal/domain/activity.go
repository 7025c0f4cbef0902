package domain

import (
	"time"
)

// MaxChunkDuration is the longest window the activity-log listing endpoint
// accepts for a single request.
const MaxChunkDuration = 7 * 24 * time.Hour

// LogLocator is an opaque path identifying one remote activity-log object
// within a tenant/site/date/event-type partition. Locators are only valid
// within the pipeline run that produced them.
type LogLocator string

// DateChunk is a half-open interval [Start, End) no longer than
// MaxChunkDuration.
type DateChunk struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the chunk.
func (c DateChunk) Duration() time.Duration {
	return c.End.Sub(c.Start)
}

// ChunkRange partitions [start, end) into consecutive, non-overlapping chunks
// of at most MaxChunkDuration, in ascending order. The final chunk may be
// shorter. An empty or inverted range yields no chunks.
func ChunkRange(start, end time.Time) []DateChunk {
	if !start.Before(end) {
		return nil
	}

	var chunks []DateChunk
	for cur := start; cur.Before(end); {
		next := cur.Add(MaxChunkDuration)
		if next.After(end) {
			next = end
		}
		chunks = append(chunks, DateChunk{Start: cur, End: next})
		cur = next
	}
	return chunks
}

// DownloadDescriptor pairs a locator with its resolved, time-limited download
// URL. A descriptor with an empty URL could not be resolved and is counted as
// a per-file failure by the pipeline.
type DownloadDescriptor struct {
	Locator LogLocator
	URL     string
}

// FetchedLog is the raw text content of one downloaded log object, tagged
// with the locator it came from.
type FetchedLog struct {
	Locator LogLocator
	Content string
}

// Operation is the kind of subscription change carried by an activity event.
type Operation int

const (
	OperationUnknown Operation = iota
	OperationFollow
	OperationUnfollow
)

// SubscriptionEvent is one parsed activity-log record describing a user
// following or unfollowing a metric.
type SubscriptionEvent struct {
	ActorUserID string
	MetricID    string
	Operation   Operation
	Timestamp   time.Time
}
