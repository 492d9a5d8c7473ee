package observability

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNewLogger(t *testing.T) {
	log := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())

	log = NewLogger(DefaultLoggingConfig())
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordStoreRequest("create_item", false)
		m.RecordLimiterWait(1.5)
		m.RecordCacheLookup("dedup", true)
		m.RecordDuplicate("cache")
		m.RecordCreated()
		m.RecordFailed()
		m.RecordAttachment()
		m.RecordBatch(12.5)
		m.RecordSearch("arxiv", 10)
	})
}
