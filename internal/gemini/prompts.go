package gemini

import (
	"fmt"
	"strings"

	"interview-concierge/internal/models"
)

// SystemInstruction frames every request as interview note-taking
const SystemInstruction = `You assist a product team reviewing short discovery interviews.
Interviewees answered spoken or typed questions about their work.
Never invent facts that are not in the answer. Reply with JSON only.`

// BuildResponsePrompt asks for the cleaned transcript, a one line summary
// and a sentiment signal of a single answer.
func BuildResponsePrompt(question, transcript string) string {
	return fmt.Sprintf(`Question: %s

Raw answer (speech-to-text, may contain filler words and recognition errors):
%s

Return a JSON object with exactly these keys:
- "cleaned_transcript": the answer with filler words removed and punctuation fixed, same meaning and voice
- "one_line_summary": one sentence, at most 20 words
- "sentiment_signal": one of %s`,
		question, transcript, strings.Join(models.Sentiments, ", "))
}

// BuildBriefPrompt asks for a short brief over a whole interview.
func BuildBriefPrompt(answers []models.QA) string {
	var b strings.Builder
	b.WriteString("Interview answers:\n\n")
	for _, qa := range answers {
		fmt.Fprintf(&b, "Q%d. %s\nA: %s\n\n", qa.Number, qa.Question, qa.Answer)
	}
	b.WriteString(`Return a JSON object with a single key "brief": three to five sentences covering the interviewee's role, their main pain points and anything they asked for.`)
	return b.String()
}
