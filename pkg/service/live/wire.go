package live

import (
	"encoding/base64"
	"strings"

	"github.com/m-mizutani/imoye/pkg/model"
)

const (
	MIMEText  = "text/plain"
	MIMEAudio = "audio/pcm"

	RoleUser  = "user"
	RoleModel = "model"
)

// WireMessage is one JSON text frame exchanged with the client. Content
// frames carry mime_type, data and role; control frames carry only
// turn_complete and interrupted.
type WireMessage struct {
	MIMEType     string `json:"mime_type,omitempty"`
	Data         string `json:"data,omitempty"`
	Role         string `json:"role,omitempty"`
	TurnComplete *bool  `json:"turn_complete,omitempty"`
	Interrupted  *bool  `json:"interrupted,omitempty"`
}

// Encode converts an agent event to an outgoing frame. It returns nil for
// events that produce no frame: nil events, parts other than text or PCM
// audio, empty audio, and text that is not partial.
func Encode(ev *model.Event) *WireMessage {
	if ev == nil {
		return nil
	}

	if ev.IsControl() {
		turnComplete, interrupted := ev.TurnComplete, ev.Interrupted
		return &WireMessage{
			TurnComplete: &turnComplete,
			Interrupted:  &interrupted,
		}
	}

	// Only the first part of an event is forwarded
	switch p := ev.FirstPart().(type) {
	case model.TextPart:
		// Complete text repeats what was already streamed as partials
		if !ev.Partial {
			return nil
		}
		return &WireMessage{
			MIMEType: MIMEText,
			Data:     p.Text,
			Role:     RoleModel,
		}

	case model.BlobPart:
		if !strings.HasPrefix(p.MIMEType, MIMEAudio) || len(p.Data) == 0 {
			return nil
		}
		return &WireMessage{
			MIMEType: MIMEAudio,
			Data:     base64.StdEncoding.EncodeToString(p.Data),
			Role:     RoleModel,
		}
	}

	return nil
}
