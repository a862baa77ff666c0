// Package converter turns one upstream response body into zero or more
// topic-addressed records. Converters are pure with respect to scheduler
// state: they never see or touch offsets or backoff.
package converter

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core"
	verrors "github.com/vitalsync/vitalsync/internal/errors"
)

// Request carries the window metadata a converter may need. It is a
// read-only view of the scheduler's request.
type Request struct {
	User  core.User
	Route string
	Start time.Time
	End   time.Time
}

// Converter maps one response body to records. A malformed individual record
// is dropped and logged, never failing the whole response; an unparseable
// body returns a CONVERTER_FAILURE error.
type Converter interface {
	Convert(req Request, headers http.Header, body []byte) ([]core.Record, error)
}

// dataEnvelope is the common `{"data": [...]}` response shape.
type dataEnvelope struct {
	Data []json.RawMessage `json:"data"`
}

// decodeData extracts the raw items of a data envelope. A missing data field
// yields an empty slice, which the scheduler treats as an empty response.
func decodeData(body []byte) ([]json.RawMessage, error) {
	var envelope dataEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, verrors.Wrap(verrors.KindConverter, err, "unparseable response body")
	}
	return envelope.Data, nil
}

// epoch renders an instant as fractional seconds since the epoch, the unit
// used in all record values.
func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func logDropped(log *zap.Logger, route string, index int, err error) {
	if log == nil {
		return
	}
	log.Warn("dropping malformed record",
		zap.String("route", route),
		zap.Int("index", index),
		zap.Error(err))
}
