package model

import "time"

// DefaultCallType はコールセッションの固定名前空間。
const DefaultCallType = "default"

// Call はビデオ通話セッション（namespace + id で識別）を表す。
// nonexistent → created → joined → ended と遷移する。
type Call struct {
	Type        string
	ID          string
	CreatedBy   string // 作成者のexternal_id
	Description string
	StartsAt    time.Time
	CreatedAt   time.Time
	EndedAt     *time.Time
}

// Ended は通話が終了済みかどうかを返す。
func (c *Call) Ended() bool {
	return c.EndedAt != nil
}

// CallMetadata は通話作成時に永続化されるメタデータ。
type CallMetadata struct {
	StartsAt    time.Time
	Description string
}

// CallMember は通話に参加したユーザーを表す。
// LeftAtがnilのメンバーが現在のライブ参加者。
type CallMember struct {
	CallType string
	CallID   string
	UserID   string // external_id
	Name     string
	Image    string
	JoinedAt time.Time
	LeftAt   *time.Time
}

// Participant はプレゼンス配信用のライブ参加者表現。
type Participant struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	Image    string    `json:"image,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ParticipantSnapshot はある時点のライブ参加者集合。
type ParticipantSnapshot struct {
	CallType     string        `json:"callType"`
	CallID       string        `json:"callId"`
	Participants []Participant `json:"participants"`
	Ended        bool          `json:"ended"`
	At           time.Time     `json:"at"`
}
