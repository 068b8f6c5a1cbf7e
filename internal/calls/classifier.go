package calls

import "strings"

// voicemailCutoffSeconds is the longest completed call still treated as
// missed. Calls that connect and hang up within this window almost
// always rang through to voicemail rather than a person.
const voicemailCutoffSeconds = 30

// IsMissed reports whether a terminal Twilio call status describes a
// call the business never actually answered. The status match is
// case-insensitive. No-answer, busy, and failed calls are always
// missed; completed calls count as missed only when they are short
// enough to have been a voicemail pickup.
func IsMissed(callStatus string, durationSeconds int) bool {
	switch strings.ToLower(callStatus) {
	case "no-answer", "busy", "failed":
		return true
	case "completed":
		return durationSeconds <= voicemailCutoffSeconds
	default:
		return false
	}
}
