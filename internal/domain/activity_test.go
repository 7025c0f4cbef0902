package domain

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestChunkRange(t *testing.T) {
	t.Run("Range Within One Chunk", func(t *testing.T) {
		chunks := ChunkRange(date(2026, 1, 1), date(2026, 1, 4))

		if len(chunks) != 1 {
			t.Fatalf("expected 1 chunk, got %d", len(chunks))
		}
		if !chunks[0].Start.Equal(date(2026, 1, 1)) || !chunks[0].End.Equal(date(2026, 1, 4)) {
			t.Errorf("unexpected chunk bounds: %v - %v", chunks[0].Start, chunks[0].End)
		}
	})

	t.Run("Exact Multiple Of Chunk Size", func(t *testing.T) {
		chunks := ChunkRange(date(2026, 1, 1), date(2026, 1, 15))

		if len(chunks) != 2 {
			t.Fatalf("expected 2 chunks, got %d", len(chunks))
		}
		for i, c := range chunks {
			if c.Duration() != MaxChunkDuration {
				t.Errorf("chunk %d: expected full duration, got %v", i, c.Duration())
			}
		}
	})

	t.Run("Final Chunk Shorter", func(t *testing.T) {
		chunks := ChunkRange(date(2026, 1, 1), date(2026, 1, 20))

		if len(chunks) != 3 {
			t.Fatalf("expected 3 chunks, got %d", len(chunks))
		}
		last := chunks[len(chunks)-1]
		if last.Duration() != 5*24*time.Hour {
			t.Errorf("expected final chunk of 5 days, got %v", last.Duration())
		}
	})

	t.Run("Chunks Cover Range Without Gaps Or Overlap", func(t *testing.T) {
		start, end := date(2026, 1, 1), date(2026, 3, 10)
		chunks := ChunkRange(start, end)

		if !chunks[0].Start.Equal(start) {
			t.Errorf("first chunk does not start at range start: %v", chunks[0].Start)
		}
		if !chunks[len(chunks)-1].End.Equal(end) {
			t.Errorf("last chunk does not end at range end: %v", chunks[len(chunks)-1].End)
		}
		for i := 1; i < len(chunks); i++ {
			if !chunks[i].Start.Equal(chunks[i-1].End) {
				t.Errorf("gap or overlap between chunks %d and %d", i-1, i)
			}
		}
		for i, c := range chunks {
			if c.Duration() > MaxChunkDuration {
				t.Errorf("chunk %d exceeds maximum duration: %v", i, c.Duration())
			}
			if c.Duration() <= 0 {
				t.Errorf("chunk %d is empty or inverted", i)
			}
		}
	})

	t.Run("Empty Range", func(t *testing.T) {
		if chunks := ChunkRange(date(2026, 1, 1), date(2026, 1, 1)); chunks != nil {
			t.Errorf("expected no chunks for empty range, got %d", len(chunks))
		}
	})

	t.Run("Inverted Range", func(t *testing.T) {
		if chunks := ChunkRange(date(2026, 1, 5), date(2026, 1, 1)); chunks != nil {
			t.Errorf("expected no chunks for inverted range, got %d", len(chunks))
		}
	})
}
