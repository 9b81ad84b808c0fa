package models

// Sentiment values written to the Sentiment Signal column
var Sentiments = []string{"Positive", "Neutral", "Frustrated", "Mixed"}

// ResponseInsights is what the enricher derives from one raw answer
type ResponseInsights struct {
	CleanedTranscript string `json:"cleaned_transcript"`
	OneLineSummary    string `json:"one_line_summary"`
	SentimentSignal   string `json:"sentiment_signal"`
}

// QA is one question with its cleaned answer, input to a brief
type QA struct {
	Number   int
	Question string
	Answer   string
}

// IsSentiment reports whether s is one of the known sentiment values.
func IsSentiment(s string) bool {
	for _, v := range Sentiments {
		if v == s {
			return true
		}
	}
	return false
}
