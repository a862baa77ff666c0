package converter

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core"
)

// DailyActivityValue is one day's activity summary.
type DailyActivityValue struct {
	Time           float64 `json:"time"`
	TimeReceived   float64 `json:"timeReceived"`
	Steps          int     `json:"steps"`
	ActiveCalories int     `json:"activeCalories"`
	TotalCalories  int     `json:"totalCalories"`
	Score          int     `json:"score,omitempty"`
}

// DailyActivity converts daily activity summary responses.
type DailyActivity struct {
	Topic string
	Log   *zap.Logger

	// Clock is overridable for tests.
	Clock func() time.Time
}

// NewDailyActivity creates a daily activity converter with the default topic.
func NewDailyActivity(log *zap.Logger) *DailyActivity {
	return &DailyActivity{Topic: "vitalsync_daily_activity", Log: log}
}

func (c *DailyActivity) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

// Convert maps one daily activity response body to records.
func (c *DailyActivity) Convert(req Request, headers http.Header, body []byte) ([]core.Record, error) {
	items, err := decodeData(body)
	if err != nil {
		return nil, err
	}

	received := epoch(c.now())
	records := make([]core.Record, 0, len(items))
	for i, raw := range items {
		var item struct {
			Timestamp      time.Time `json:"timestamp"`
			Steps          int       `json:"steps"`
			ActiveCalories int       `json:"active_calories"`
			TotalCalories  int       `json:"total_calories"`
			Score          int       `json:"score"`
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			logDropped(c.Log, req.Route, i, err)
			continue
		}
		records = append(records, core.Record{
			Topic:     c.Topic,
			Key:       req.User.ObservationKey(),
			Timestamp: item.Timestamp,
			Value: DailyActivityValue{
				Time:           epoch(item.Timestamp),
				TimeReceived:   received,
				Steps:          item.Steps,
				ActiveCalories: item.ActiveCalories,
				TotalCalories:  item.TotalCalories,
				Score:          item.Score,
			},
		})
	}
	return records, nil
}
