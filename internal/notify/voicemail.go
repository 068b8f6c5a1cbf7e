package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/pointguardu/pgu-ai/internal/directory"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

// VoicemailNotifier emails a client whenever a caller leaves a
// voicemail on their line.
type VoicemailNotifier struct {
	sender EmailSender
	logger *logging.Logger
}

// Voicemail describes one stored voicemail recording.
type Voicemail struct {
	CallSid      string
	CallerNumber string
	BusinessLine string
	RecordingURL string
}

func NewVoicemailNotifier(sender EmailSender, logger *logging.Logger) *VoicemailNotifier {
	if sender == nil {
		panic("notify: email sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VoicemailNotifier{sender: sender, logger: logger}
}

// Notify sends the voicemail email to the client's notification address.
func (n *VoicemailNotifier) Notify(ctx context.Context, client *directory.ClientRecord, vm Voicemail) error {
	if client == nil || client.NotifyEmail == "" {
		return errors.New("notify: client has no notification email")
	}

	msg := EmailMessage{
		To:      client.NotifyEmail,
		ToName:  client.Name,
		Subject: fmt.Sprintf("New Voicemail from %s", vm.CallerNumber),
		Body: fmt.Sprintf(
			"You received a voicemail from %s to %s.\n\nListen to it here: %s\n\nCall SID: %s",
			vm.CallerNumber, vm.BusinessLine, vm.RecordingURL, vm.CallSid,
		),
	}

	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: voicemail email failed: %w", err)
	}
	n.logger.Info("voicemail notification sent",
		"to", client.NotifyEmail, "call_sid", vm.CallSid)
	return nil
}
