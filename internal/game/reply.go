package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/victornm/quizbot/internal/domain"
)

// Fixed replies. End users never see internal error text.
const (
	ReplyWrong     = "❌ Wrong or invalid answer. Try again, or send \"next\" for a new question."
	ReplyExhausted = "🎉 No more questions available. You've answered them all, check back later!"
	ReplyError     = "⚠️ Something went wrong. Please try again later."
)

func replyCorrect(total int) string {
	return fmt.Sprintf("✅ Correct! +1 point. Your score: %d.\nSend \"next\" for another question.", total)
}

func replyDuplicate(total int) string {
	return fmt.Sprintf("✅ Correct! This question was already scored. Your score: %d.\nSend \"next\" for another question.", total)
}

func replyLimit(max int) string {
	return fmt.Sprintf("🏁 You've reached the limit of %d questions. Thanks for playing!", max)
}

func replyPrompt(q domain.Question, remaining time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❓ %s\n", q.Text)
	for _, o := range q.Options {
		fmt.Fprintf(&b, "\n• %s", o)
	}
	fmt.Fprintf(&b, "\n\n⏱ You have %d seconds to answer. Reply with the answer, or send \"next\" to skip.", int(remaining.Round(time.Second).Seconds()))
	return b.String()
}
