package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("verbose"))
}

func TestBatchLoggerFlushesSummary(t *testing.T) {
	bl := New()
	var buf bytes.Buffer
	bl.SetOutput(&buf)
	bl.batchSize = 3

	bl.LogRequest("GET", "/api/v1/devices", 200, time.Millisecond, nil)
	bl.LogRequest("GET", "/api/v1/devices", 200, 3*time.Millisecond, nil)
	assert.Equal(t, 2, bl.Pending())
	assert.Empty(t, buf.String())

	bl.LogRequest("GET", "/api/v1/scenes", 200, time.Millisecond, nil)
	assert.Equal(t, 0, bl.Pending())
	assert.Contains(t, buf.String(), "batch_summary")
}

func TestBatchLoggerLogsErrorsImmediately(t *testing.T) {
	bl := New()
	var buf bytes.Buffer
	bl.SetOutput(&buf)

	bl.LogRequest("POST", "/api/v1/scenes/x/run", 404, time.Millisecond, logrus.Fields{"client_ip": "127.0.0.1"})
	assert.Contains(t, buf.String(), "Status: 404")
	assert.Equal(t, 0, bl.Pending())
}
