package converter

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core"
)

// SleepValue is one sleep period.
type SleepValue struct {
	Time         float64 `json:"time"`
	TimeReceived float64 `json:"timeReceived"`
	EndTime      float64 `json:"endTime"`
	Duration     float64 `json:"duration"`
	Efficiency   int     `json:"efficiency,omitempty"`
	Type         string  `json:"type,omitempty"`
}

// Sleep converts sleep period responses.
type Sleep struct {
	Topic string
	Log   *zap.Logger

	// Clock is overridable for tests.
	Clock func() time.Time
}

// NewSleep creates a sleep converter with the default topic.
func NewSleep(log *zap.Logger) *Sleep {
	return &Sleep{Topic: "vitalsync_sleep", Log: log}
}

func (c *Sleep) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

// Convert maps one sleep response body to records. The record timestamp is
// the period start, which is what the offset advances on.
func (c *Sleep) Convert(req Request, headers http.Header, body []byte) ([]core.Record, error) {
	items, err := decodeData(body)
	if err != nil {
		return nil, err
	}

	received := epoch(c.now())
	records := make([]core.Record, 0, len(items))
	for i, raw := range items {
		var item struct {
			BedtimeStart time.Time `json:"bedtime_start"`
			BedtimeEnd   time.Time `json:"bedtime_end"`
			Efficiency   int       `json:"efficiency"`
			Type         string    `json:"type"`
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			logDropped(c.Log, req.Route, i, err)
			continue
		}
		records = append(records, core.Record{
			Topic:     c.Topic,
			Key:       req.User.ObservationKey(),
			Timestamp: item.BedtimeStart,
			Value: SleepValue{
				Time:         epoch(item.BedtimeStart),
				TimeReceived: received,
				EndTime:      epoch(item.BedtimeEnd),
				Duration:     item.BedtimeEnd.Sub(item.BedtimeStart).Seconds(),
				Efficiency:   item.Efficiency,
				Type:         item.Type,
			},
		})
	}
	return records, nil
}
