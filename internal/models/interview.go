package models

// Default table names of the interview base
const (
	SessionsTable  = "Interview Sessions"
	ResponsesTable = "Interview Responses"
)

// Session columns
const (
	FieldSessionID       = "Session ID"
	FieldIntervieweeName = "Interviewee Name"
	FieldEmail           = "Email"
	FieldStartedAt       = "Started At"
	FieldStatus          = "Status"
	FieldUserAgent       = "User Agent"
	FieldInterviewBrief  = "Interview Brief"
	FieldSendEmails      = "Send Email(s)"
	FieldOtherEmails     = "Other Emails"
)

// Response columns
const (
	FieldResponseID        = "Response ID"
	FieldSession           = "Session"
	FieldQuestionNumber    = "Question Number"
	FieldQuestionText      = "Question Text"
	FieldRawTranscript     = "Raw Transcript"
	FieldRecordedAt        = "Recorded At"
	FieldCleanedTranscript = "Cleaned Transcript"
	FieldOneLineSummary    = "One Line Summary"
	FieldSentimentSignal   = "Sentiment Signal"
)

// SessionStatus is the single-select value of the Status column
type SessionStatus string

const (
	StatusInProgress SessionStatus = "In Progress"
	StatusComplete   SessionStatus = "Complete"
	StatusAbandoned  SessionStatus = "Abandoned"
)

// Tables names the two tables an interview writes to
type Tables struct {
	Sessions  string `yaml:"sessions"`
	Responses string `yaml:"responses"`
}

// DefaultTables returns the table names used by the original base.
func DefaultTables() Tables {
	return Tables{Sessions: SessionsTable, Responses: ResponsesTable}
}
