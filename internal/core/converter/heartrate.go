package converter

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core"
)

// HeartRateValue is one heart rate sample.
type HeartRateValue struct {
	Time         float64 `json:"time"`
	TimeReceived float64 `json:"timeReceived"`
	BPM          int     `json:"bpm"`
	Source       string  `json:"source,omitempty"`
}

// HeartRate converts heart rate responses.
type HeartRate struct {
	Topic string
	Log   *zap.Logger

	// Clock is overridable for tests.
	Clock func() time.Time
}

// NewHeartRate creates a heart rate converter with the default topic.
func NewHeartRate(log *zap.Logger) *HeartRate {
	return &HeartRate{Topic: "vitalsync_heart_rate", Log: log}
}

func (c *HeartRate) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

// Convert maps one heart rate response body to records.
func (c *HeartRate) Convert(req Request, headers http.Header, body []byte) ([]core.Record, error) {
	items, err := decodeData(body)
	if err != nil {
		return nil, err
	}

	received := epoch(c.now())
	records := make([]core.Record, 0, len(items))
	for i, raw := range items {
		var item struct {
			Timestamp time.Time `json:"timestamp"`
			BPM       int       `json:"bpm"`
			Source    string    `json:"source"`
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			logDropped(c.Log, req.Route, i, err)
			continue
		}
		records = append(records, core.Record{
			Topic:     c.Topic,
			Key:       req.User.ObservationKey(),
			Timestamp: item.Timestamp,
			Value: HeartRateValue{
				Time:         epoch(item.Timestamp),
				TimeReceived: received,
				BPM:          item.BPM,
				Source:       item.Source,
			},
		})
	}
	return records, nil
}
