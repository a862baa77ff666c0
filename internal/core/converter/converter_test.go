package converter

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core"
	verrors "github.com/vitalsync/vitalsync/internal/errors"
)

var testReq = Request{
	User: core.User{
		ID:        "u1",
		ProjectID: "study-a",
		UserID:    "participant-1",
		SourceID:  "src-1",
	},
	Route: "heart_rate",
	Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC),
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
}

func TestHeartRateConvert(t *testing.T) {
	conv := NewHeartRate(zap.NewNop())
	conv.Clock = fixedClock

	body := `{"data":[
		{"timestamp":"2024-01-02T10:00:00Z","bpm":61,"source":"ppg"},
		{"timestamp":"2024-01-02T10:00:05Z","bpm":63}
	]}`
	records, err := conv.Convert(testReq, http.Header{}, []byte(body))
	require.NoError(t, err)
	require.Len(t, records, 2)

	rec := records[0]
	assert.Equal(t, "vitalsync_heart_rate", rec.Topic)
	assert.Equal(t, testReq.User.ObservationKey(), rec.Key)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), rec.Timestamp)

	value, ok := rec.Value.(HeartRateValue)
	require.True(t, ok)
	assert.Equal(t, 61, value.BPM)
	assert.Equal(t, "ppg", value.Source)
	assert.InDelta(t, float64(rec.Timestamp.Unix()), value.Time, 0.001)
	assert.InDelta(t, float64(fixedClock().Unix()), value.TimeReceived, 0.001)
}

func TestHeartRateConvertDropsMalformedItems(t *testing.T) {
	conv := NewHeartRate(zap.NewNop())

	body := `{"data":[
		{"timestamp":"2024-01-02T10:00:00Z","bpm":61},
		{"timestamp":"not-a-time","bpm":62},
		{"timestamp":"2024-01-02T10:00:10Z","bpm":63}
	]}`
	records, err := conv.Convert(testReq, http.Header{}, []byte(body))
	require.NoError(t, err)
	assert.Len(t, records, 2, "a malformed item is dropped, not fatal")
}

func TestConvertUnparseableBody(t *testing.T) {
	conv := NewHeartRate(zap.NewNop())

	_, err := conv.Convert(testReq, http.Header{}, []byte(`<html>gateway error</html>`))
	require.Error(t, err)
	assert.True(t, verrors.IsKind(err, verrors.KindConverter))
}

func TestConvertEmptyAndMissingData(t *testing.T) {
	conv := NewHeartRate(zap.NewNop())

	records, err := conv.Convert(testReq, http.Header{}, []byte(`{"data":[]}`))
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = conv.Convert(testReq, http.Header{}, []byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, records, "a missing data field reads as an empty response")
}

func TestSleepConvert(t *testing.T) {
	conv := NewSleep(zap.NewNop())
	conv.Clock = fixedClock

	body := `{"data":[{
		"bedtime_start":"2024-01-02T22:30:00Z",
		"bedtime_end":"2024-01-03T06:30:00Z",
		"efficiency":92,
		"type":"long_sleep"
	}]}`
	records, err := conv.Convert(testReq, http.Header{}, []byte(body))
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "vitalsync_sleep", rec.Topic)
	assert.Equal(t, time.Date(2024, 1, 2, 22, 30, 0, 0, time.UTC), rec.Timestamp,
		"offset advances on period start")

	value, ok := rec.Value.(SleepValue)
	require.True(t, ok)
	assert.Equal(t, 92, value.Efficiency)
	assert.Equal(t, "long_sleep", value.Type)
	assert.InDelta(t, 8*time.Hour.Seconds(), value.Duration, 0.001)
}

func TestDailyActivityConvert(t *testing.T) {
	conv := NewDailyActivity(zap.NewNop())
	conv.Clock = fixedClock

	body := `{"data":[{
		"timestamp":"2024-01-02T00:00:00Z",
		"steps":10423,
		"active_calories":512,
		"total_calories":2310,
		"score":85
	}]}`
	records, err := conv.Convert(testReq, http.Header{}, []byte(body))
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "vitalsync_daily_activity", records[0].Topic)
	value, ok := records[0].Value.(DailyActivityValue)
	require.True(t, ok)
	assert.Equal(t, 10423, value.Steps)
	assert.Equal(t, 85, value.Score)
}

func TestSpO2Convert(t *testing.T) {
	conv := NewSpO2(zap.NewNop())
	conv.Clock = fixedClock

	body := `{"data":[{
		"timestamp":"2024-01-02T00:00:00Z",
		"spo2_percentage":{"average":96.5}
	}]}`
	records, err := conv.Convert(testReq, http.Header{}, []byte(body))
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "vitalsync_spo2", records[0].Topic)
	value, ok := records[0].Value.(SpO2Value)
	require.True(t, ok)
	assert.InDelta(t, 96.5, value.Average, 0.001)
}
