package metric

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTruncatesToSecondUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("CET", 3600)
	ts := time.Date(2024, 3, 1, 12, 30, 45, 987654321, loc)
	m := New(ts, 120*time.Millisecond, 200, true)

	assert.Equal(t, time.UTC, m.Timestamp.Location())
	assert.Equal(t, 0, m.Timestamp.Nanosecond())
	assert.True(t, m.Timestamp.Equal(time.Date(2024, 3, 1, 11, 30, 45, 0, time.UTC)))
	assert.Equal(t, int64(120), m.ResponseTime)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	m := New(time.Unix(1700000000, 0), 240*time.Millisecond, 404, false)
	data, err := Encode(7, m)
	require.NoError(t, err)

	urlID, got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, int64(7), urlID)
	assert.Equal(t, m, got)
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	t.Parallel()

	// A newer producer may add fields; old consumers must skip them.
	payload := []byte(`{"v":1,"url_id":3,"timestamp":"2024-03-01T11:30:45Z",` +
		`"response_time":88,"return_code":200,"regex_check":true,` +
		`"shard":"eu-west","trace_id":"abc"}`)

	urlID, m, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(3), urlID)
	assert.Equal(t, int64(88), m.ResponseTime)
	assert.Equal(t, 200, m.ReturnCode)
	assert.True(t, m.RegexCheck)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"v":9,"url_id":3,"timestamp":"2024-03-01T11:30:45Z"}`)
	_, _, err := Decode(payload)
	assert.Error(t, err)
}

func TestDecodeRejectsMissingURLID(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"v":1,"timestamp":"2024-03-01T11:30:45Z","return_code":200}`)
	_, _, err := Decode(payload)
	assert.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, _, err := Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestFailedSentinels(t *testing.T) {
	t.Parallel()

	assert.True(t, Metric{ReturnCode: ReturnCodeUnreachable}.Failed())
	assert.True(t, Metric{ReturnCode: ReturnCodeInvalid}.Failed())
	assert.False(t, Metric{ReturnCode: 503}.Failed())
	assert.False(t, Metric{ReturnCode: 200}.Failed())
}

func TestKeyOfStableAcrossRedelivery(t *testing.T) {
	t.Parallel()

	m := New(time.Unix(1700000000, 0), 10*time.Millisecond, 200, true)
	data, err := Encode(5, m)
	require.NoError(t, err)

	// Simulate redelivery: decode the same payload twice.
	id1, m1, err := Decode(data)
	require.NoError(t, err)
	id2, m2, err := Decode(append([]byte(nil), data...))
	require.NoError(t, err)

	assert.Equal(t, KeyOf(id1, m1), KeyOf(id2, m2))
}

func TestEnvelopeFieldNames(t *testing.T) {
	t.Parallel()

	data, err := Encode(1, New(time.Unix(0, 0), 0, 200, true))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, field := range []string{"v", "url_id", "timestamp", "response_time", "return_code", "regex_check"} {
		assert.Contains(t, raw, field)
	}
}
