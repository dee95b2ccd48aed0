package runtime

import (
	"errors"
	"sync"
	"time"

	errspkg "github.com/drblury/streamroute/internal/runtime/errors"
	"github.com/drblury/streamroute/internal/runtime/stream"
)

// UnprocessableBatchError wraps payloads that could not be parsed as a
// DynamoDB stream event.
type UnprocessableBatchError struct {
	Err error
}

func (e *UnprocessableBatchError) Error() string {
	return "unprocessable stream batch: " + e.Err.Error()
}

func (e *UnprocessableBatchError) Unwrap() error {
	return e.Err
}

type ErrorCategory string

const (
	ErrorCategoryNone    ErrorCategory = "none"
	ErrorCategoryPayload ErrorCategory = "payload"
	ErrorCategoryDecode  ErrorCategory = "decode"
	ErrorCategoryHandler ErrorCategory = "handler"
	ErrorCategoryOther   ErrorCategory = "other"
)

type ErrorClassifier func(error) ErrorCategory

func defaultErrorClassifier(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	var unprocessable *UnprocessableBatchError
	if errors.As(err, &unprocessable) {
		return ErrorCategoryPayload
	}
	var decodeErr *stream.DecodeError
	if errors.As(err, &decodeErr) {
		return ErrorCategoryDecode
	}
	var handlerErr *errspkg.HandlerError
	if errors.As(err, &handlerErr) {
		return ErrorCategoryHandler
	}
	return ErrorCategoryOther
}

type ErrorBreakdown struct {
	Payload   uint64 `json:"payload"`
	Decode    uint64 `json:"decode"`
	Handler   uint64 `json:"handler"`
	Other     uint64 `json:"other"`
	LastError string `json:"last_error,omitempty"`
}

// HandlerStatsSnapshot is a point-in-time copy of a handler's counters.
type HandlerStatsSnapshot struct {
	BatchesProcessed    uint64         `json:"batches_processed"`
	BatchesFailed       uint64         `json:"batches_failed"`
	RecordsRouted       uint64         `json:"records_routed"`
	MatchesDispatched   uint64         `json:"matches_dispatched"`
	TotalProcessingTime int64          `json:"total_processing_time_ns"`
	LastProcessedAt     time.Time      `json:"last_processed_at"`
	Errors              ErrorBreakdown `json:"errors"`
}

// HandlerStats accumulates per-handler batch statistics.
type HandlerStats struct {
	mu    sync.Mutex
	stats HandlerStatsSnapshot
}

// HandlerInfo describes a registered stream handler.
type HandlerInfo struct {
	Name         string
	ConsumeQueue string
	Groups       []string
	Stats        *HandlerStats
}

// HandlerSummary is the serialisable view of a HandlerInfo.
type HandlerSummary struct {
	Name         string               `json:"name"`
	ConsumeQueue string               `json:"consume_queue"`
	Groups       []string             `json:"groups"`
	Stats        HandlerStatsSnapshot `json:"stats"`
}

type batchResult struct {
	records int
	matches int
}

func (h *HandlerStats) record(result batchResult, duration time.Duration, err error, classifier ErrorClassifier) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.BatchesProcessed++
	h.stats.RecordsRouted += uint64(result.records)
	h.stats.MatchesDispatched += uint64(result.matches)
	h.stats.TotalProcessingTime += duration.Nanoseconds()
	h.stats.LastProcessedAt = time.Now()

	if err == nil {
		return
	}
	h.stats.BatchesFailed++
	h.stats.Errors.LastError = err.Error()
	switch classifier(err) {
	case ErrorCategoryPayload:
		h.stats.Errors.Payload++
	case ErrorCategoryDecode:
		h.stats.Errors.Decode++
	case ErrorCategoryHandler:
		h.stats.Errors.Handler++
	default:
		h.stats.Errors.Other++
	}
}

// Snapshot returns a copy of the current counters.
func (h *HandlerStats) Snapshot() HandlerStatsSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Handlers lists the registered stream handlers in registration order.
func (s *Service) Handlers() []HandlerSummary {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()

	out := make([]HandlerSummary, 0, len(s.handlers))
	for _, info := range s.handlers {
		out = append(out, HandlerSummary{
			Name:         info.Name,
			ConsumeQueue: info.ConsumeQueue,
			Groups:       info.Groups,
			Stats:        info.Stats.Snapshot(),
		})
	}
	return out
}
