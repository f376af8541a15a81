package domain

import "time"

const (
	EventNameScoreRecorded        = "score.recorded"
	EventNameLeaderboardPublished = "leaderboard.published"
	EventNameBroadcastRequested   = "broadcast.requested"
)

type EventScoreRecorded struct {
	UserID     string
	QuestionID string
	TotalScore int
	Time       time.Time
}

func (EventScoreRecorded) Name() string { return EventNameScoreRecorded }

type EventLeaderboardPublished struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardPublished) Name() string { return EventNameLeaderboardPublished }

type EventBroadcastRequested struct {
	Message   string
	Addresses []string
}

func (EventBroadcastRequested) Name() string { return EventNameBroadcastRequested }
