package messaging

import (
	"encoding/xml"
	"fmt"
)

// voicemailGreeting is spoken after the line rings out. The leading
// pause gives the business time to pick up before the assistant takes
// over.
const voicemailGreeting = "Hey, you've reached Point Guard University! We'll follow up with a text message soon, but if you need to reach us sooner, feel free to email us at info@pointguarduniversity.com. If you prefer not to receive messages, reply STOP to opt out. Please leave a message after the beep."

const (
	answerPauseSeconds     = 20
	maxRecordingSeconds    = 30
	recordingCallbackRoute = "/webhooks/twilio/recording"
)

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlRecord struct {
	XMLName   xml.Name `xml:"Record"`
	MaxLength int      `xml:"maxLength,attr"`
	Action    string   `xml:"action,attr"`
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Pause   *twimlPause
	Say     *twimlSay
	Record  *twimlRecord
}

// MissedCallTwiML renders the voice response for an unanswered call:
// wait out the ring, read the greeting, then record a voicemail and
// post it back to the recording webhook.
func MissedCallTwiML(baseURL string) (string, error) {
	resp := twimlResponse{
		Pause: &twimlPause{Length: answerPauseSeconds},
		Say:   &twimlSay{Text: voicemailGreeting},
		Record: &twimlRecord{
			MaxLength: maxRecordingSeconds,
			Action:    baseURL + recordingCallbackRoute,
		},
	}

	out, err := xml.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("messaging: twiml render failed: %w", err)
	}
	return xml.Header + string(out), nil
}
