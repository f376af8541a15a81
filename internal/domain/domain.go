package domain

import (
	"slices"
	"time"
)

// Question is a trivia question with a free-text correct answer.
type Question struct {
	ID       string   `json:"id" yaml:"id"`
	Text     string   `json:"question" yaml:"question"`
	Options  []string `json:"options" yaml:"options"`
	Answer   string   `json:"answer" yaml:"answer"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
}

// CurrentQuestion is the question a user is currently asked, together with its answer window.
type CurrentQuestion struct {
	QuestionID  string    `json:"question_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Complete reports whether all fields are set.
func (c *CurrentQuestion) Complete() bool {
	return c != nil && c.QuestionID != "" && !c.WindowStart.IsZero() && !c.WindowEnd.IsZero()
}

// UserState is the per-user game document.
type UserState struct {
	UserID            string           `json:"id"`
	Name              string           `json:"name"`
	Address           string           `json:"wa_number"`
	AnsweredQuestions []string         `json:"answered_questions"`
	Score             int              `json:"score"`
	DailyScores       map[string]int   `json:"daily_scores"`
	CurrentQuestion   *CurrentQuestion `json:"current_question"`
	LastPlayed        time.Time        `json:"last_played"`
}

// NewUserState returns the default state of a user that never played.
func NewUserState(userID string) UserState {
	return UserState{
		UserID:            userID,
		AnsweredQuestions: []string{},
		DailyScores:       map[string]int{},
	}
}

// HasAnswered reports whether the question was already scored for the user.
func (u UserState) HasAnswered(questionID string) bool {
	return slices.Contains(u.AnsweredQuestions, questionID)
}

// DisplayName returns the name shown on leaderboards.
func (u UserState) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if len(u.UserID) > 4 {
		return u.UserID[len(u.UserID)-4:]
	}
	return u.UserID
}

// Clone returns a deep copy, so a transition can never alias the state it was computed from.
func (u UserState) Clone() UserState {
	c := u
	c.AnsweredQuestions = slices.Clone(u.AnsweredQuestions)
	if c.AnsweredQuestions == nil {
		c.AnsweredQuestions = []string{}
	}
	c.DailyScores = make(map[string]int, len(u.DailyScores))
	for k, v := range u.DailyScores {
		c.DailyScores[k] = v
	}
	if u.CurrentQuestion != nil {
		cq := *u.CurrentQuestion
		c.CurrentQuestion = &cq
	}
	return c
}

// Normalize fills nil collections and drops a partially set current question.
func (u *UserState) Normalize() {
	if u.AnsweredQuestions == nil {
		u.AnsweredQuestions = []string{}
	}
	if u.DailyScores == nil {
		u.DailyScores = map[string]int{}
	}
	if u.CurrentQuestion != nil && !u.CurrentQuestion.Complete() {
		u.CurrentQuestion = nil
	}
}

// LeaderboardKind selects the score window of a leaderboard.
type LeaderboardKind string

const (
	LeaderboardDaily  LeaderboardKind = "daily"
	LeaderboardWeekly LeaderboardKind = "weekly"
)

// Valid reports whether k is a known kind.
func (k LeaderboardKind) Valid() bool {
	return k == LeaderboardDaily || k == LeaderboardWeekly
}

// Leaderboard represents the ranked users of one bucket.
// The list is sorted by score in descending order.
type Leaderboard struct {
	Kind    LeaderboardKind    `json:"kind"`
	Bucket  string             `json:"bucket"`
	Entries []LeaderboardEntry `json:"entries"`
}

type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Address string `json:"wa_number,omitempty"`
}
