package converter

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core"
)

// SpO2Value is one day's blood oxygen saturation summary.
type SpO2Value struct {
	Time         float64 `json:"time"`
	TimeReceived float64 `json:"timeReceived"`
	Average      float64 `json:"average"`
}

// SpO2 converts daily oxygen saturation responses.
type SpO2 struct {
	Topic string
	Log   *zap.Logger

	// Clock is overridable for tests.
	Clock func() time.Time
}

// NewSpO2 creates an SpO2 converter with the default topic.
func NewSpO2(log *zap.Logger) *SpO2 {
	return &SpO2{Topic: "vitalsync_spo2", Log: log}
}

func (c *SpO2) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

// Convert maps one SpO2 response body to records.
func (c *SpO2) Convert(req Request, headers http.Header, body []byte) ([]core.Record, error) {
	items, err := decodeData(body)
	if err != nil {
		return nil, err
	}

	received := epoch(c.now())
	records := make([]core.Record, 0, len(items))
	for i, raw := range items {
		var item struct {
			Timestamp      time.Time `json:"timestamp"`
			SpO2Percentage struct {
				Average float64 `json:"average"`
			} `json:"spo2_percentage"`
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			logDropped(c.Log, req.Route, i, err)
			continue
		}
		records = append(records, core.Record{
			Topic:     c.Topic,
			Key:       req.User.ObservationKey(),
			Timestamp: item.Timestamp,
			Value: SpO2Value{
				Time:         epoch(item.Timestamp),
				TimeReceived: received,
				Average:      item.SpO2Percentage.Average,
			},
		})
	}
	return records, nil
}
