package agent

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/adapter"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/tool"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
	"google.golang.org/genai"
)

// Voice opens live sessions against the Gemini Live API
type Voice struct {
	gemini   adapter.Gemini
	registry *tool.Registry
	cfg      VoiceConfig
}

// NewVoice creates a voice agent whose function calls go to registry
func NewVoice(gemini adapter.Gemini, registry *tool.Registry, cfg VoiceConfig) *Voice {
	return &Voice{
		gemini:   gemini,
		registry: registry,
		cfg:      cfg,
	}
}

// Connect starts a live session. Audio sessions answer with speech and an
// output transcription; text sessions answer with text.
func (v *Voice) Connect(ctx context.Context, sessionID model.SessionID, isAudio bool) (*LiveSession, error) {
	config := &genai.LiveConnectConfig{
		SystemInstruction: genai.NewContentFromText(v.cfg.Instruction, ""),
		Tools:             v.registry.Specs(),
	}

	if isAudio {
		config.ResponseModalities = []genai.Modality{genai.ModalityAudio}
		config.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
		config.SpeechConfig = &genai.SpeechConfig{
			LanguageCode: v.cfg.Language,
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: v.cfg.Voice,
				},
			},
		}
	} else {
		config.ResponseModalities = []genai.Modality{genai.ModalityText}
	}

	conn, err := v.gemini.ConnectLive(ctx, v.cfg.Model, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to start live session",
			goerr.V("session_id", sessionID), goerr.V("is_audio", isAudio))
	}

	return &LiveSession{
		conn:      conn,
		registry:  v.registry,
		sessionID: sessionID,
	}, nil
}

// LiveSession is one live conversation. Server messages are converted to
// model.Event; tool calls are answered internally and never surface.
type LiveSession struct {
	conn      adapter.LiveConn
	registry  *tool.Registry
	sessionID model.SessionID
	pending   []*model.Event
}

// SendText sends text as one complete turn
func (s *LiveSession) SendText(ctx context.Context, role, text string) error {
	if err := s.conn.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.Role(role))},
		TurnComplete: genai.Ptr(true),
	}); err != nil {
		return goerr.Wrap(err, "failed to send content", goerr.V("session_id", s.sessionID))
	}
	return nil
}

// SendAudio streams one chunk of realtime audio
func (s *LiveSession) SendAudio(ctx context.Context, mimeType string, data []byte) error {
	if err := s.conn.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: mimeType, Data: data},
	}); err != nil {
		return goerr.Wrap(err, "failed to send audio", goerr.V("session_id", s.sessionID))
	}
	return nil
}

// Receive blocks until the next event. It fails when the session ends.
func (s *LiveSession) Receive(ctx context.Context) (*model.Event, error) {
	for len(s.pending) == 0 {
		msg, err := s.conn.Receive()
		if err != nil {
			return nil, goerr.Wrap(err, "live session ended", goerr.V("session_id", s.sessionID))
		}

		if msg.ToolCall != nil {
			if err := s.answerToolCall(ctx, msg.ToolCall); err != nil {
				return nil, err
			}
			continue
		}

		if msg.GoAway != nil {
			logging.From(ctx).Info("live session will be closed by server", "time_left", msg.GoAway.TimeLeft)
		}

		s.pending = ConvertServerContent(msg.ServerContent)
	}

	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

// Close ends the live session
func (s *LiveSession) Close() error {
	if err := s.conn.Close(); err != nil {
		return goerr.Wrap(err, "failed to close live session", goerr.V("session_id", s.sessionID))
	}
	return nil
}

func (s *LiveSession) answerToolCall(ctx context.Context, call *genai.LiveServerToolCall) error {
	ctx = tool.WithSession(ctx, s.sessionID)
	logger := logging.From(ctx)

	var responses []*genai.FunctionResponse
	for _, fc := range call.FunctionCalls {
		if fc == nil {
			continue
		}

		logger.Debug("live function call", "name", fc.Name)
		resp, err := s.registry.Execute(ctx, *fc)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logger.Warn("tool execution failed", "name", fc.Name, "error", err)
			resp = &genai.FunctionResponse{
				ID:   fc.ID,
				Name: fc.Name,
				Response: map[string]any{
					"status":  "error",
					"message": err.Error(),
				},
			}
		}
		responses = append(responses, resp)
	}

	if err := s.conn.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses}); err != nil {
		return goerr.Wrap(err, "failed to send tool response", goerr.V("session_id", s.sessionID))
	}
	return nil
}

// ConvertServerContent maps one server content message to events, in the
// order content, transcription, interruption, turn completion
func ConvertServerContent(sc *genai.LiveServerContent) []*model.Event {
	if sc == nil {
		return nil
	}

	var events []*model.Event

	if sc.ModelTurn != nil && len(sc.ModelTurn.Parts) > 0 {
		ev := &model.Event{Partial: true}
		for _, p := range sc.ModelTurn.Parts {
			ev.Parts = append(ev.Parts, convertPart(p))
		}
		events = append(events, ev)
	}

	if tr := sc.OutputTranscription; tr != nil && tr.Text != "" {
		events = append(events, &model.Event{
			Partial: !tr.Finished,
			Parts:   []model.EventPart{model.TextPart{Text: tr.Text}},
		})
	}

	if sc.Interrupted {
		events = append(events, &model.Event{Interrupted: true})
	}
	if sc.TurnComplete {
		events = append(events, &model.Event{TurnComplete: true})
	}

	return events
}

func convertPart(p *genai.Part) model.EventPart {
	switch {
	case p == nil:
		return model.OtherPart{Kind: "empty"}
	case p.Thought:
		return model.OtherPart{Kind: "thought"}
	case p.Text != "":
		return model.TextPart{Text: p.Text}
	case p.InlineData != nil:
		return model.BlobPart{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}
	case p.FunctionCall != nil:
		return model.OtherPart{Kind: "function_call"}
	case p.ExecutableCode != nil:
		return model.OtherPart{Kind: "executable_code"}
	default:
		return model.OtherPart{Kind: "unknown"}
	}
}
