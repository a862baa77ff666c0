// Package route declares the upstream API endpoints the connector polls.
// Routes are stateless descriptors built once at startup; all scheduling
// state lives in the scheduler and the offset store.
package route

import (
	"time"

	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core/converter"
)

// Route describes one upstream data endpoint.
type Route struct {
	// Name is how the route appears in offsets, backoff keys, and logs.
	Name string
	// SubPath is the endpoint path below the API base URL.
	SubPath string
	// Interval is the maximum time span one request may cover.
	Interval time.Duration
	// Converters turn one response body into records, applied in order.
	Converters []converter.Converter
}

func (r Route) String() string {
	return r.Name
}

// Flags enables or disables individual routes. The zero value disables
// everything; DefaultFlags enables everything.
type Flags struct {
	HeartRate     bool `mapstructure:"heart_rate"`
	Sleep         bool `mapstructure:"sleep"`
	DailyActivity bool `mapstructure:"daily_activity"`
	SpO2          bool `mapstructure:"spo2"`
}

// DefaultFlags enables every route.
func DefaultFlags() Flags {
	return Flags{HeartRate: true, Sleep: true, DailyActivity: true, SpO2: true}
}

// Catalog builds the enabled routes. Intervals may override the per-route
// default window sizes by route name.
func Catalog(flags Flags, intervals map[string]time.Duration, log *zap.Logger) []Route {
	interval := func(name string, def time.Duration) time.Duration {
		if d, ok := intervals[name]; ok && d > 0 {
			return d
		}
		return def
	}

	routes := make([]Route, 0, 4)
	if flags.HeartRate {
		routes = append(routes, Route{
			Name:       "heart_rate",
			SubPath:    "heartrate",
			Interval:   interval("heart_rate", 5*24*time.Hour),
			Converters: []converter.Converter{converter.NewHeartRate(log)},
		})
	}
	if flags.Sleep {
		routes = append(routes, Route{
			Name:       "sleep",
			SubPath:    "sleep",
			Interval:   interval("sleep", 30*24*time.Hour),
			Converters: []converter.Converter{converter.NewSleep(log)},
		})
	}
	if flags.DailyActivity {
		routes = append(routes, Route{
			Name:       "daily_activity",
			SubPath:    "daily_activity",
			Interval:   interval("daily_activity", 30*24*time.Hour),
			Converters: []converter.Converter{converter.NewDailyActivity(log)},
		})
	}
	if flags.SpO2 {
		routes = append(routes, Route{
			Name:       "spo2",
			SubPath:    "daily_spo2",
			Interval:   interval("spo2", 30*24*time.Hour),
			Converters: []converter.Converter{converter.NewSpO2(log)},
		})
	}
	return routes
}
