package training

import (
	"math"
	"strings"
	"unicode/utf8"
)

// QualityScore rates an entry between 0.1 and 1.0 from cheap signals:
// output length, conversation depth, tweet engagement and entry type.
func QualityScore(e Entry) float64 {
	n := utf8.RuneCountInString(strings.TrimSpace(e.Output))
	if n < 20 {
		return 0.1
	}

	score := 0.5
	switch {
	case n < 50:
		score -= 0.2
	case n >= 500:
		score += 0.2
	case n >= 200:
		score += 0.1
	}

	switch l := e.Context.ConversationLength; {
	case l >= 6:
		score += 0.2
	case l >= 3:
		score += 0.1
	}

	if e.Type == TweetWrite && e.Metadata.TweetEngagement != nil {
		eng := e.Metadata.TweetEngagement
		total := float64(eng.Likes) + float64(eng.Retweets)*2 + float64(eng.Replies)*1.5
		if total > 0 {
			score += math.Min(0.3, math.Log10(total+1)*0.15)
		}
	}

	switch e.Type {
	case Study, CodeAnalysis, OpinionType:
		score += 0.1
	}

	score = math.Round(score*100) / 100
	return math.Max(0.1, math.Min(1.0, score))
}
