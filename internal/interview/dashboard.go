package interview

import (
	"sort"
	"time"

	"github.com/hitoshi/codemeet/internal/model"
)

// LiveWindow は開始からライブとみなす時間。
const LiveWindow = time.Hour

// MeetingState はダッシュボード上の面接の時間的な状態。
type MeetingState string

const (
	MeetingUpcoming  MeetingState = "upcoming"
	MeetingLive      MeetingState = "live"
	MeetingCompleted MeetingState = "completed"
)

// MeetingStatus は開始時刻と現在時刻から状態を返す。
// [start, start+LiveWindow] はlive、それより前はupcoming、後はcompleted。
func MeetingStatus(iv *model.Interview, now time.Time) MeetingState {
	if now.Before(iv.StartTime) {
		return MeetingUpcoming
	}
	if !now.After(iv.StartTime.Add(LiveWindow)) {
		return MeetingLive
	}
	return MeetingCompleted
}

// SortByStartTime は開始時刻の昇順に並べた新しいスライスを返す。
func SortByStartTime(list []*model.Interview) []*model.Interview {
	out := make([]*model.Interview, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Groups はダッシュボードの列ごとの面接。
type Groups struct {
	Upcoming  []*model.Interview `json:"upcoming"`
	Completed []*model.Interview `json:"completed"`
	Succeeded []*model.Interview `json:"succeeded"`
	Failed    []*model.Interview `json:"failed"`
}

// Group は面接を列に振り分ける。判定済みの面接はステータスで、
// scheduledのものは時刻で振り分け、ライブ中はupcomingに含める。
func Group(list []*model.Interview, now time.Time) Groups {
	g := Groups{
		Upcoming:  []*model.Interview{},
		Completed: []*model.Interview{},
		Succeeded: []*model.Interview{},
		Failed:    []*model.Interview{},
	}
	for _, iv := range SortByStartTime(list) {
		switch iv.Status {
		case model.InterviewStatusSucceeded:
			g.Succeeded = append(g.Succeeded, iv)
		case model.InterviewStatusFailed:
			g.Failed = append(g.Failed, iv)
		case model.InterviewStatusCompleted:
			g.Completed = append(g.Completed, iv)
		default:
			if MeetingStatus(iv, now) == MeetingCompleted {
				g.Completed = append(g.Completed, iv)
			} else {
				g.Upcoming = append(g.Upcoming, iv)
			}
		}
	}
	return g
}

// Stats はダッシュボードの集計値。
type Stats struct {
	Total     int `json:"total"`
	Upcoming  int `json:"upcoming"`
	Completed int `json:"completed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ComputeStats は振り分け結果から集計値を算出する。
func ComputeStats(g Groups) Stats {
	s := Stats{
		Upcoming:  len(g.Upcoming),
		Completed: len(g.Completed),
		Succeeded: len(g.Succeeded),
		Failed:    len(g.Failed),
	}
	s.Total = s.Upcoming + s.Completed + s.Succeeded + s.Failed
	return s
}

// AverageRating はコメントの平均評価を返す。コメントが無い場合は0。
func AverageRating(comments []*model.Comment) float64 {
	if len(comments) == 0 {
		return 0
	}
	sum := 0
	for _, c := range comments {
		sum += c.Rating
	}
	return float64(sum) / float64(len(comments))
}
