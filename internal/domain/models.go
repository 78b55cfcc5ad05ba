package domain

import "time"

type TargetID string

// Target is a monitored endpoint. LastStatus and LastCheckedAt are written
// only by the check pipeline, together with the matching HistoryRecord.
type Target struct {
	ID            TargetID   `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	LastStatus    int        `json:"last_status"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// HistoryRecord is one immutable check outcome. ID orders records of the
// same target by creation.
type HistoryRecord struct {
	ID         int64     `json:"id"`
	TargetID   TargetID  `json:"target_id"`
	StatusCode int       `json:"status_code"`
	LatencyMS  float64   `json:"latency_ms"`
	Advisory   string    `json:"advisory"`
	CheckedAt  time.Time `json:"checked_at"`
}

// LatestResult is what the dashboard shows for a target.
type LatestResult struct {
	StatusCode int       `json:"status"`
	Advisory   string    `json:"advisory"`
	CheckedAt  time.Time `json:"checked_at"`
	Known      bool      `json:"known"`
}

const NoDataAdvisory = "no data yet"

// UnknownResult is returned for targets that were never checked.
func UnknownResult() LatestResult {
	return LatestResult{StatusCode: 200, Advisory: NoDataAdvisory}
}

func ResultFrom(r *HistoryRecord) LatestResult {
	if r == nil {
		return UnknownResult()
	}
	return LatestResult{
		StatusCode: r.StatusCode,
		Advisory:   r.Advisory,
		CheckedAt:  r.CheckedAt,
		Known:      true,
	}
}

// Healthy reports whether a classified status counts as "up".
func Healthy(status int) bool {
	return status >= 200 && status < 400
}
