package logging

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. JSON output so the connector's lines can
// be shipped alongside the Redmine application logs.
var Log *logrus.Logger

func init() {
	Log = logrus.New()
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	Log.SetOutput(os.Stdout)
	Log.SetLevel(logrus.InfoLevel)
}

// WithTrace returns an entry carrying the trace id of one inbound message,
// so every log line of its processing can be grepped together.
func WithTrace(traceID string) *logrus.Entry {
	return Log.WithField("trace_id", traceID)
}
