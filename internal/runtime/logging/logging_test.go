package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wmEntry struct {
	level  string
	msg    string
	err    error
	fields watermill.LogFields
}

type recordingWatermillLogger struct {
	entries *[]wmEntry
	fields  watermill.LogFields
}

func newRecordingWatermillLogger() *recordingWatermillLogger {
	return &recordingWatermillLogger{entries: &[]wmEntry{}}
}

func (r *recordingWatermillLogger) record(level, msg string, err error, fields watermill.LogFields) {
	merged := r.fields.Add(fields)
	*r.entries = append(*r.entries, wmEntry{level: level, msg: msg, err: err, fields: merged})
}

func (r *recordingWatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	r.record("error", msg, err, fields)
}

func (r *recordingWatermillLogger) Info(msg string, fields watermill.LogFields) {
	r.record("info", msg, nil, fields)
}

func (r *recordingWatermillLogger) Debug(msg string, fields watermill.LogFields) {
	r.record("debug", msg, nil, fields)
}

func (r *recordingWatermillLogger) Trace(msg string, fields watermill.LogFields) {
	r.record("trace", msg, nil, fields)
}

func (r *recordingWatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &recordingWatermillLogger{entries: r.entries, fields: r.fields.Add(fields)}
}

type recordingServiceLogger struct {
	msgs   []string
	fields LogFields
}

func (r *recordingServiceLogger) With(fields LogFields) ServiceLogger {
	merged := LogFields{}
	for k, v := range r.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &recordingServiceLogger{fields: merged}
}

func (r *recordingServiceLogger) Debug(msg string, _ LogFields)          { r.msgs = append(r.msgs, msg) }
func (r *recordingServiceLogger) Info(msg string, _ LogFields)           { r.msgs = append(r.msgs, msg) }
func (r *recordingServiceLogger) Error(msg string, _ error, _ LogFields) { r.msgs = append(r.msgs, msg) }
func (r *recordingServiceLogger) Trace(msg string, _ LogFields)          { r.msgs = append(r.msgs, msg) }

func TestWatermillServiceLoggerDelegates(t *testing.T) {
	base := newRecordingWatermillLogger()
	logger := NewWatermillServiceLogger(base)

	logger.Debug("dbg", LogFields{"component": "router"})
	logger.Info("info", nil)
	logger.Trace("trace", LogFields{"trace": true})
	boom := errors.New("boom")
	logger.Error("oops", boom, LogFields{"failed": true})

	logger.With(LogFields{"group": "cart-created"}).Info("child", nil)

	entries := *base.entries
	require.Len(t, entries, 5)
	assert.Equal(t, "debug", entries[0].level)
	assert.Equal(t, "router", entries[0].fields["component"])
	assert.Equal(t, "error", entries[3].level)
	assert.Same(t, boom, entries[3].err)
	assert.Equal(t, "cart-created", entries[4].fields["group"])
}

func TestWatermillServiceLoggerWithoutFieldsReturnsSelf(t *testing.T) {
	logger := NewWatermillServiceLogger(newRecordingWatermillLogger())
	assert.Equal(t, logger, logger.With(nil))
}

func TestConstructorsPanicOnNil(t *testing.T) {
	assert.Panics(t, func() { NewWatermillServiceLogger(nil) })
	assert.Panics(t, func() { NewSlogServiceLogger(nil) })
	assert.Panics(t, func() { NewWatermillAdapter(nil) })
}

func TestSlogServiceLoggerWritesStructuredFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewSlogServiceLogger(slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger.Info("routed batch", LogFields{"records": 2})

	assert.Contains(t, buf.String(), `"msg":"routed batch"`)
	assert.Contains(t, buf.String(), `"records":2`)
}

func TestDiscardLoggerDropsEntries(t *testing.T) {
	logger := NewDiscardLogger()
	assert.NotPanics(t, func() {
		logger.Info("dropped", LogFields{"k": "v"})
		logger.Error("dropped", errors.New("boom"), nil)
		logger.With(LogFields{"k": "v"}).Debug("dropped", nil)
	})
}

func TestWatermillAdapterDelegates(t *testing.T) {
	base := &recordingServiceLogger{}
	adapter := NewWatermillAdapter(base)

	adapter.Debug("dbg", watermill.LogFields{"k": "v"})
	adapter.Info("info", nil)
	adapter.Trace("trace", nil)
	adapter.Error("err", errors.New("boom"), nil)

	assert.Equal(t, []string{"dbg", "info", "trace", "err"}, base.msgs)

	child, ok := adapter.With(watermill.LogFields{"child": "yes"}).(serviceSink)
	require.True(t, ok)
	childBase, ok := child.log.(*recordingServiceLogger)
	require.True(t, ok)
	assert.Equal(t, "yes", childBase.fields["child"])
}

func TestFieldConversionDropsEmptyMaps(t *testing.T) {
	assert.Nil(t, toWatermill(LogFields{}))
	assert.Nil(t, fromWatermill(watermill.LogFields{}))
	assert.Equal(t, watermill.LogFields{"a": 1}, toWatermill(LogFields{"a": 1}))
}

func TestForComponent(t *testing.T) {
	base := newRecordingWatermillLogger()
	ForComponent(NewWatermillServiceLogger(base), "dispatch").Info("Handler completed", LogFields{"group": "cart-created"})

	entries := *base.entries
	require.Len(t, entries, 1)
	assert.Equal(t, "dispatch", entries[0].fields["component"])
	assert.Equal(t, "cart-created", entries[0].fields["group"])

	assert.NotPanics(t, func() { ForComponent(nil, "router").Debug("dropped", nil) })
}
