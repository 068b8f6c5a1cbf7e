package calls

import (
	"fmt"
	"time"
)

// CallStatus tracks the follow-up lifecycle of a missed call.
type CallStatus string

const (
	StatusPending   CallStatus = "pending"
	StatusCompleted CallStatus = "completed"
	StatusFailed    CallStatus = "failed"
)

// MissedCallRecord is the persisted state of one missed call, keyed by
// the Twilio CallSid. CallerLine is the composite "caller#line" key the
// caller-line-index GSI sorts by createdAt, so the most recent missed
// call from a given caller to a given business line is a single query.
type MissedCallRecord struct {
	CallSid        string     `dynamodbav:"callSid" json:"callSid"`
	ClientID       string     `dynamodbav:"clientId" json:"clientId"`
	ClinicName     string     `dynamodbav:"clinicName,omitempty" json:"clinicName,omitempty"`
	CallerNumber   string     `dynamodbav:"callerNumber" json:"callerNumber"`
	BusinessLine   string     `dynamodbav:"businessLine" json:"businessLine"`
	CallerLine     string     `dynamodbav:"callerLine" json:"callerLine"`
	CallStatus     string     `dynamodbav:"callStatus" json:"callStatus"`
	Duration       int        `dynamodbav:"duration" json:"duration"`
	Status         CallStatus `dynamodbav:"status" json:"status"`
	FollowUpText   string     `dynamodbav:"followUpText,omitempty" json:"followUpText,omitempty"`
	MessageSid     string     `dynamodbav:"messageSid,omitempty" json:"messageSid,omitempty"`
	VoicemailURL   string     `dynamodbav:"voicemailUrl,omitempty" json:"voicemailUrl,omitempty"`
	ErrorMessage   string     `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt      string     `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt      string     `dynamodbav:"updatedAt" json:"updatedAt"`
	FollowUpSentAt string     `dynamodbav:"followUpSentAt,omitempty" json:"followUpSentAt,omitempty"`
}

// TurnRole distinguishes who produced a conversation turn.
type TurnRole string

const (
	RoleUser TurnRole = "user"
	RoleAI   TurnRole = "ai"
)

// ConversationTurn is one message in a missed-call text thread. Turns
// share the parent CallSid and sort by TurnKey, a timestamp plus a
// per-exchange sequence so the user message and the reply it triggered
// keep their order even when written at the same instant.
type ConversationTurn struct {
	CallSid   string   `dynamodbav:"callSid" json:"callSid"`
	TurnKey   string   `dynamodbav:"turnKey" json:"turnKey"`
	Role      TurnRole `dynamodbav:"role" json:"role"`
	Body      string   `dynamodbav:"body" json:"body"`
	Timestamp string   `dynamodbav:"timestamp" json:"timestamp"`
	Sequence  int      `dynamodbav:"sequence" json:"sequence"`
}

// CallerLineKey builds the composite partition key for the
// caller-line-index GSI.
func CallerLineKey(caller, line string) string {
	return caller + "#" + line
}

// turnKeyTimeFormat pads nanoseconds to full width. RFC3339Nano drops
// trailing zeros, which breaks lexicographic ordering within a second.
const turnKeyTimeFormat = "2006-01-02T15:04:05.000000000Z"

// TurnKeyFor builds the sort key for a conversation turn.
func TurnKeyFor(at time.Time, sequence int) string {
	return fmt.Sprintf("%s#%04d", at.UTC().Format(turnKeyTimeFormat), sequence)
}
