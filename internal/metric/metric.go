// Package metric defines the check-result record shared by the checker and
// dbupdate daemons, along with its wire encoding.
package metric

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sentinel return codes for failed fetches. Both are outside the range of
// real HTTP status codes so a failure is never mistaken for a response.
const (
	// ReturnCodeUnreachable marks DNS, connection and timeout failures.
	ReturnCodeUnreachable = 599
	// ReturnCodeInvalid marks requests that could not be issued at all,
	// such as a malformed URL.
	ReturnCodeInvalid = -1
)

// SchemaVersion is the current envelope schema version. Decoders accept any
// envelope with a version they recognize and ignore unknown fields, so old
// consumers keep working when fields are added.
const SchemaVersion = 1

// Metric is one check result. Immutable once created.
type Metric struct {
	// Timestamp is when the check started, truncated to whole seconds, UTC.
	Timestamp time.Time
	// ResponseTime is the elapsed fetch time in milliseconds.
	ResponseTime int64
	// ReturnCode is the final HTTP status, or a failure sentinel.
	ReturnCode int
	// RegexCheck is true when no pattern is configured or the pattern
	// matched the body. False on a failed match or a failed fetch.
	RegexCheck bool
}

// New builds a Metric, normalizing the timestamp to second precision UTC.
func New(ts time.Time, responseTime time.Duration, returnCode int, regexCheck bool) Metric {
	return Metric{
		Timestamp:    ts.UTC().Truncate(time.Second),
		ResponseTime: responseTime.Milliseconds(),
		ReturnCode:   returnCode,
		RegexCheck:   regexCheck,
	}
}

// Failed reports whether the metric records a failed fetch rather than an
// HTTP response.
func (m Metric) Failed() bool {
	return m.ReturnCode == ReturnCodeUnreachable || m.ReturnCode == ReturnCodeInvalid
}

// Envelope is the queue payload for one metric. The URL id doubles as the
// partition key so per-URL publish order survives the queue.
type Envelope struct {
	Version      int       `json:"v"`
	URLID        int64     `json:"url_id"`
	Timestamp    time.Time `json:"timestamp"`
	ResponseTime int64     `json:"response_time"`
	ReturnCode   int       `json:"return_code"`
	RegexCheck   bool      `json:"regex_check"`
}

// Encode serializes a metric for the given URL id into queue payload bytes.
func Encode(urlID int64, m Metric) ([]byte, error) {
	env := Envelope{
		Version:      SchemaVersion,
		URLID:        urlID,
		Timestamp:    m.Timestamp,
		ResponseTime: m.ResponseTime,
		ReturnCode:   m.ReturnCode,
		RegexCheck:   m.RegexCheck,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal metric envelope: %w", err)
	}
	return data, nil
}

// Decode parses a queue payload back into a URL id and metric. Payloads
// with an unknown schema version are rejected; unknown fields are ignored.
func Decode(data []byte) (int64, Metric, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, Metric{}, fmt.Errorf("unmarshal metric envelope: %w", err)
	}
	if env.Version != SchemaVersion {
		return 0, Metric{}, fmt.Errorf("unsupported metric schema version %d", env.Version)
	}
	if env.URLID <= 0 {
		return 0, Metric{}, fmt.Errorf("metric envelope missing url_id")
	}
	m := Metric{
		Timestamp:    env.Timestamp.UTC().Truncate(time.Second),
		ResponseTime: env.ResponseTime,
		ReturnCode:   env.ReturnCode,
		RegexCheck:   env.RegexCheck,
	}
	return env.URLID, m, nil
}

// Key identifies a metric for deduplication. Two deliveries of the same
// logical metric always carry the same key.
type Key struct {
	URLID     int64
	Timestamp time.Time
}

// KeyOf returns the dedup identity for a metric of the given URL.
func KeyOf(urlID int64, m Metric) Key {
	return Key{URLID: urlID, Timestamp: m.Timestamp}
}
