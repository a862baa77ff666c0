package core

import "time"

// ObservationKey identifies the subject a record belongs to.
type ObservationKey struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	SourceID  string `json:"sourceId"`
}

// User is an immutable snapshot of one enrolled user. Snapshots are
// superseded wholesale by the next directory refresh, never mutated.
type User struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"projectId"`
	UserID          string     `json:"userId"`
	SourceID        string     `json:"sourceId"`
	ExternalID      string     `json:"externalId,omitempty"`
	HumanReadableID string     `json:"humanReadableUserId,omitempty"`
	ServiceUserID   string     `json:"serviceUserId,omitempty"`
	StartDate       time.Time  `json:"startDate"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	Version         string     `json:"version,omitempty"`
	Authorized      bool       `json:"isAuthorized"`
}

// VersionedID returns the identifier used in offsets and backoff keys. It
// changes whenever the user re-enrolls, so state from a previous enrollment
// is never reused.
func (u User) VersionedID() string {
	if u.Version == "" {
		return u.ID
	}
	return u.ID + "#" + u.Version
}

// ObservationKey returns the record key for this user.
func (u User) ObservationKey() ObservationKey {
	return ObservationKey{ProjectID: u.ProjectID, UserID: u.UserID, SourceID: u.SourceID}
}

// Complete reports whether the user can be polled: authorized, with a valid
// enrollment window and a resolvable upstream service user.
func (u User) Complete() bool {
	return u.Authorized && !u.StartDate.IsZero() && u.ServiceUserID != ""
}

// Record is a single topic-addressed output value produced by a converter.
type Record struct {
	Topic     string         `json:"topic"`
	Key       ObservationKey `json:"key"`
	Value     any            `json:"value"`
	Timestamp time.Time      `json:"timestamp"`
}

// PairKey identifies one (user, route) scheduling pair. Backoff and offset
// state for different keys never interact.
type PairKey struct {
	UserID string
	Route  string
}

// String renders the key the way it appears in logs and offsets.
func (k PairKey) String() string {
	return k.UserID + "#" + k.Route
}

// MinInstant and MaxInstant are the extremes used as "never polled" and
// "never poll again" markers.
var (
	MinInstant = time.Unix(0, 0).UTC()
	MaxInstant = time.Unix(1<<41, 0).UTC()
)
