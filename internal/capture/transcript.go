package capture

import "strings"

// Result is one speech recognition alternative as reported by the browser
type Result struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"isFinal"`
}

// ResultEvent mirrors a SpeechRecognition "result" event: Results holds the
// whole result list of the session, ResultIndex the first changed entry.
type ResultEvent struct {
	ResultIndex int      `json:"resultIndex"`
	Results     []Result `json:"results"`
}

// Transcript accumulates final recognition results and keeps the latest
// interim text separately.
type Transcript struct {
	Accumulated string `json:"accumulated"`
	Interim     string `json:"interim"`
}

// Apply folds a recognition event into the transcript. Every final result
// from ResultIndex on is appended followed by a single space; the interim
// text is replaced by the concatenation of the non-final ones.
func (t *Transcript) Apply(ev ResultEvent) {
	start := ev.ResultIndex
	if start < 0 {
		start = 0
	}

	var interim strings.Builder
	for i := start; i < len(ev.Results); i++ {
		r := ev.Results[i]
		if r.IsFinal {
			t.Accumulated += r.Transcript + " "
			continue
		}
		interim.WriteString(r.Transcript)
	}
	t.Interim = interim.String()
}

// SetText replaces the transcript with typed text
func (t *Transcript) SetText(text string) {
	t.Accumulated = text
	t.Interim = ""
}

// Reset clears both parts
func (t *Transcript) Reset() {
	t.Accumulated = ""
	t.Interim = ""
}

// Full is the answer as it would be saved right now
func (t Transcript) Full() string {
	return strings.TrimSpace(t.Accumulated + t.Interim)
}

// HasText reports whether there is anything to submit. Interim text only
// counts while speaking.
func (t Transcript) HasText(textOnly bool) bool {
	if strings.TrimSpace(t.Accumulated) != "" {
		return true
	}
	return !textOnly && t.Transcribing()
}

// Transcribing reports whether the recognizer is mid-phrase
func (t Transcript) Transcribing() bool {
	return strings.TrimSpace(t.Interim) != ""
}
