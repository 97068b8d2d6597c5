package usecase

import (
	"strings"

	"gemini-qa/internal/domain"
)

// replayableHistory returns the completed turns of a transcript: a user entry
// immediately followed by a non-empty model entry. Questions whose answer
// never arrived stay in the transcript but are not sent back to the gateway.
func replayableHistory(transcript []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(transcript))
	for i := 0; i+1 < len(transcript); i++ {
		q, a := transcript[i], transcript[i+1]
		if q.Role != domain.RoleUser || a.Role != domain.RoleModel {
			continue
		}
		if strings.TrimSpace(q.Content) == "" || strings.TrimSpace(a.Content) == "" {
			continue
		}
		out = append(out, q, a)
		i++
	}
	return out
}
