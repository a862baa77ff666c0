package output

import (
	"encoding/json"
	"time"

	"github.com/vitalsync/vitalsync/internal/core"
	"github.com/vitalsync/vitalsync/internal/core/offsets"
)

// JSONFormatter renders listings as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FormatUsers renders the user directory as JSON.
func (f *JSONFormatter) FormatUsers(users []core.User) (string, error) {
	if users == nil {
		users = []core.User{}
	}
	return f.marshal(users)
}

type offsetDoc struct {
	UserID string    `json:"userId"`
	Route  string    `json:"route"`
	Offset time.Time `json:"offset"`
}

// FormatOffsets renders stored offsets as JSON.
func (f *JSONFormatter) FormatOffsets(offs []offsets.Offset) (string, error) {
	docs := make([]offsetDoc, 0, len(offs))
	for _, o := range offs {
		docs = append(docs, offsetDoc{UserID: o.UserID, Route: o.Route, Offset: o.Offset.UTC()})
	}
	return f.marshal(docs)
}
