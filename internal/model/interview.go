package model

import "time"

// InterviewStatus は面接の進行状態を表す。
type InterviewStatus string

const (
	InterviewStatusScheduled InterviewStatus = "scheduled"
	InterviewStatusCompleted InterviewStatus = "completed"
	InterviewStatusSucceeded InterviewStatus = "succeeded"
	InterviewStatusFailed    InterviewStatus = "failed"
)

// Valid は定義済みのステータスかどうかを返す。
func (s InterviewStatus) Valid() bool {
	switch s {
	case InterviewStatusScheduled, InterviewStatusCompleted, InterviewStatusSucceeded, InterviewStatusFailed:
		return true
	default:
		return false
	}
}

// Interview はスケジュールされた技術面接を表す。
// CandidateID、InterviewerIDsはexternal_idを保持する。
type Interview struct {
	ID             string
	Title          string
	Description    string
	StartTime      time.Time
	EndTime        *time.Time
	Status         InterviewStatus
	CallID         string
	CandidateID    string
	InterviewerIDs []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasInterviewer は指定のexternal_idが面接官に含まれるかを返す。
func (iv *Interview) HasInterviewer(externalID string) bool {
	for _, id := range iv.InterviewerIDs {
		if id == externalID {
			return true
		}
	}
	return false
}

// Comment は面接官が面接に残す評価コメント。
type Comment struct {
	ID            string
	InterviewID   string
	InterviewerID string
	Content       string
	Rating        int
	CreatedAt     time.Time
}
