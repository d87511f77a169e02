// Package security provides log-line redaction so credentials and secrets
// never reach the structured log sink, adapted from the pack's
// sensitive-pattern scrubber.
package security

import (
	"regexp"

	"github.com/sirupsen/logrus"
)

type sensitivePattern struct {
	re   *regexp.Regexp
	mask string
}

var patterns = []sensitivePattern{
	{regexp.MustCompile(`(?i)(authorization:\s*bearer\s+)[a-z0-9\-_.]+`), "${1}[REDACTED]"},
	{regexp.MustCompile(`(?i)(x-api-key:\s*)\S+`), "${1}[REDACTED]"},
	{regexp.MustCompile(`(?i)(password["']?\s*[:=]\s*["']?)[^"'\s,}]+`), "${1}[REDACTED]"},
	{regexp.MustCompile(`(?i)(secret["']?\s*[:=]\s*["']?)[^"'\s,}]+`), "${1}[REDACTED]"},
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), "[REDACTED-JWT]"},
}

// Redact scrubs known secret-shaped substrings from a log line before it is
// written out.
func Redact(line string) string {
	for _, p := range patterns {
		line = p.re.ReplaceAllString(line, p.mask)
	}
	return line
}

// RedactHook is a logrus.Hook that redacts the message and any
// string-valued fields of every log entry before it reaches the output
// formatter, so a query string or header value logged verbatim elsewhere in
// the server can't leak a credential into the log sink.
type RedactHook struct{}

func (RedactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (RedactHook) Fire(e *logrus.Entry) error {
	e.Message = Redact(e.Message)
	for k, v := range e.Data {
		if s, ok := v.(string); ok {
			e.Data[k] = Redact(s)
		}
	}
	return nil
}
