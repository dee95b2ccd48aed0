// Package logging is the single log sink shared by the stream router, the
// dispatcher and the Watermill host. Everything funnels into a Watermill
// LoggerAdapter, so a batch consumed from a queue and the records routed out
// of it end up in the same structured stream.
package logging

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields are the structured attributes attached to a log entry, such as
// component, group or event_id.
type LogFields map[string]any

// ServiceLogger is what routing and dispatch code logs through. Debug carries
// per-batch summaries, Error carries decode and handler failures.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// slog has no trace level; Watermill's trace entries are mapped onto debug
// by NewSlogLoggerWithLevelMapping, the rest pass through.
var slogLevels = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// NewSlogServiceLogger logs through log using Watermill's slog adapter.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("streamroute: slog logger cannot be nil")
	}
	return NewWatermillServiceLogger(watermill.NewSlogLoggerWithLevelMapping(log, slogLevels))
}

// NewDiscardLogger drops every entry. It is the fallback of the router and
// the dispatcher when the caller supplies no logger.
func NewDiscardLogger() ServiceLogger {
	return NewSlogServiceLogger(slog.New(slog.DiscardHandler))
}

// ForComponent scopes logger to one part of the pipeline ("router",
// "dispatch"). A nil logger yields a discarding one.
func ForComponent(logger ServiceLogger, component string) ServiceLogger {
	if logger == nil {
		logger = NewDiscardLogger()
	}
	return logger.With(LogFields{"component": component})
}

// NewWatermillServiceLogger exposes a Watermill LoggerAdapter as a
// ServiceLogger.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("streamroute: watermill logger cannot be nil")
	}
	return wmSink{logger}
}

// NewWatermillAdapter goes the other way: the host hands it to the Watermill
// router and transports so their entries reach the caller's logger.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("streamroute: ServiceLogger cannot be nil")
	}
	return serviceSink{log}
}

type wmSink struct {
	wm watermill.LoggerAdapter
}

func (s wmSink) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return s
	}
	return wmSink{s.wm.With(watermill.LogFields(fields))}
}

func (s wmSink) Debug(msg string, fields LogFields) { s.wm.Debug(msg, toWatermill(fields)) }
func (s wmSink) Info(msg string, fields LogFields)  { s.wm.Info(msg, toWatermill(fields)) }
func (s wmSink) Trace(msg string, fields LogFields) { s.wm.Trace(msg, toWatermill(fields)) }

func (s wmSink) Error(msg string, err error, fields LogFields) {
	s.wm.Error(msg, err, toWatermill(fields))
}

type serviceSink struct {
	log ServiceLogger
}

func (s serviceSink) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return serviceSink{s.log.With(fromWatermill(fields))}
}

func (s serviceSink) Debug(msg string, fields watermill.LogFields) { s.log.Debug(msg, fromWatermill(fields)) }
func (s serviceSink) Info(msg string, fields watermill.LogFields)  { s.log.Info(msg, fromWatermill(fields)) }
func (s serviceSink) Trace(msg string, fields watermill.LogFields) { s.log.Trace(msg, fromWatermill(fields)) }

func (s serviceSink) Error(msg string, err error, fields watermill.LogFields) {
	s.log.Error(msg, err, fromWatermill(fields))
}

func toWatermill(fields LogFields) watermill.LogFields {
	if len(fields) == 0 {
		return nil
	}
	return watermill.LogFields(fields)
}

func fromWatermill(fields watermill.LogFields) LogFields {
	if len(fields) == 0 {
		return nil
	}
	return LogFields(fields)
}
