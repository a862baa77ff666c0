package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/vitalsync/vitalsync/internal/core"
	"github.com/vitalsync/vitalsync/internal/core/scheduler"
)

// PairStatus describes the scheduling state of one (user, route) pair.
type PairStatus struct {
	UserID        string     `json:"userId"`
	Route         string     `json:"route"`
	NextRequestAt *time.Time `json:"nextRequestAt,omitempty"`
	Disabled      bool       `json:"disabled,omitempty"`
}

// StatusResponse is the scheduler status document.
type StatusResponse struct {
	Timestamp          time.Time       `json:"timestamp"`
	LastCycle          scheduler.Stats `json:"lastCycle"`
	GlobalBackoffUntil *time.Time      `json:"globalBackoffUntil,omitempty"`
	Pairs              []PairStatus    `json:"pairs"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Timestamp: time.Now().UTC(),
		Pairs:     []PairStatus{},
	}

	if s.gen != nil {
		pairs, global := s.gen.Backoff().Snapshot()
		if !global.IsZero() {
			resp.GlobalBackoffUntil = &global
		}
		for key, until := range pairs {
			ps := PairStatus{UserID: key.UserID, Route: key.Route}
			if until.Equal(core.MaxInstant) {
				ps.Disabled = true
			} else if !until.IsZero() {
				u := until
				ps.NextRequestAt = &u
			}
			resp.Pairs = append(resp.Pairs, ps)
		}
		sort.Slice(resp.Pairs, func(i, j int) bool {
			if resp.Pairs[i].UserID != resp.Pairs[j].UserID {
				return resp.Pairs[i].UserID < resp.Pairs[j].UserID
			}
			return resp.Pairs[i].Route < resp.Pairs[j].Route
		})
	}
	if s.runner != nil {
		resp.LastCycle = s.runner.LastStats()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
