package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

type GeminiConfig struct {
	APIKey    string
	TextModel string
	LiveModel string
	Voice     string
}

type GeminiProvider struct {
	client *genai.Client
	cfg    GeminiConfig
}

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	if cfg.TextModel == "" {
		cfg.TextModel = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &GeminiProvider{client: client, cfg: cfg}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.TextModel, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	return resp.Text(), nil
}

func (p *GeminiProvider) NewChat(_ context.Context, cfg ChatConfig) (Chat, error) {
	history := make([]*genai.Content, 0, len(cfg.History))
	for _, m := range cfg.History {
		history = append(history, genai.NewContentFromText(m.Text, genai.Role(m.Role)))
	}
	return &geminiChat{
		models:  p.client.Models,
		model:   p.cfg.TextModel,
		history: history,
		config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
			Tools:             toGenaiTools(cfg.Tools),
		},
	}, nil
}

// geminiChat is a client-side chat: the full history is resent on every
// exchange.
type geminiChat struct {
	models *genai.Models
	model  string
	config *genai.GenerateContentConfig

	mu      sync.Mutex
	history []*genai.Content
}

func (c *geminiChat) SendText(ctx context.Context, text string) (*Reply, error) {
	return c.send(ctx, genai.NewContentFromText(text, genai.RoleUser))
}

func (c *geminiChat) SendToolResponses(ctx context.Context, responses []ToolResponse) (*Reply, error) {
	parts := make([]*genai.Part, 0, len(responses))
	for _, r := range responses {
		parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Response,
		}})
	}
	return c.send(ctx, &genai.Content{Role: string(genai.RoleUser), Parts: parts})
}

func (c *geminiChat) send(ctx context.Context, msg *genai.Content) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	contents := append(append([]*genai.Content(nil), c.history...), msg)
	resp, err := c.models.GenerateContent(ctx, c.model, contents, c.config)
	if err != nil {
		return nil, fmt.Errorf("gemini: chat: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini: chat: empty response")
	}

	c.history = append(contents, resp.Candidates[0].Content)

	out := &Reply{Text: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
	}
	return out, nil
}

func (p *GeminiProvider) ConnectLive(ctx context.Context, cfg LiveConfig) (LiveConn, error) {
	conf := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction:  genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
		Tools:              toGenaiTools(cfg.Tools),

		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if p.cfg.Voice != "" {
		conf.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: p.cfg.Voice},
			},
		}
	}

	session, err := p.client.Live.Connect(ctx, p.cfg.LiveModel, conf)
	if err != nil {
		return nil, fmt.Errorf("gemini: live connect: %w", err)
	}
	return &geminiLive{session: session}, nil
}

type geminiLive struct {
	// the underlying websocket allows one concurrent writer
	sendMu  sync.Mutex
	session *genai.Session
}

func (l *geminiLive) SendAudio(pcm []byte, mimeType string) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	return l.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: mimeType},
	})
}

func (l *geminiLive) SendText(text string) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	return l.session.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: genai.Ptr(true),
	})
}

func (l *geminiLive) SendToolResponses(responses []ToolResponse) error {
	frs := make([]*genai.FunctionResponse, 0, len(responses))
	for _, r := range responses {
		frs = append(frs, &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response})
	}
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	return l.session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: frs})
}

func (l *geminiLive) Receive() (*LiveEvent, error) {
	msg, err := l.session.Receive()
	if err != nil {
		return nil, err
	}

	ev := &LiveEvent{SetupComplete: msg.SetupComplete != nil}
	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
					ev.Audio = append(ev.Audio, AudioChunk{
						Data:     part.InlineData.Data,
						MIMEType: part.InlineData.MIMEType,
					})
				}
			}
		}
		if sc.OutputTranscription != nil {
			ev.OutputTranscript = sc.OutputTranscription.Text
		}
		if sc.InputTranscription != nil {
			ev.InputTranscript = sc.InputTranscription.Text
		}
		ev.TurnComplete = sc.TurnComplete
		ev.Interrupted = sc.Interrupted
	}
	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			ev.ToolCalls = append(ev.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	return ev, nil
}

func (l *geminiLive) Close() error {
	return l.session.Close()
}

func toGenaiTools(specs []ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  toGenaiSchema(s.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
	}
	switch s.Type {
	case TypeObject:
		out.Type = genai.TypeObject
	case TypeNumber:
		out.Type = genai.TypeNumber
	case TypeBoolean:
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenaiSchema(v)
		}
	}
	return out
}
