// Package textchat answers typed messages through the remote text service
// when no realtime session is open.
package textchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/haru-bank/internal/ai"
	"github.com/suPer8Hu/haru-bank/internal/bank"
	"github.com/suPer8Hu/haru-bank/internal/persona"
	"github.com/suPer8Hu/haru-bank/internal/tools"
	"go.uber.org/zap"
)

const RecoveryNotice = "Connection interrupted. Recovering session..."

// ToolRunner executes one tool call against the session state.
type ToolRunner interface {
	Dispatch(name string, args map[string]any) tools.Result
}

// ProviderFunc resolves the provider at chat creation time, so a debug
// switch to mock mode takes effect on the next rebuild.
type ProviderFunc func(ctx context.Context) (ai.Provider, error)

type Service struct {
	store    *bank.Store
	tools    ToolRunner
	provider ProviderFunc
	log      *zap.Logger

	// one exchange at a time per session
	turnMu sync.Mutex

	mu   sync.Mutex
	chat ai.Chat
}

func NewService(store *bank.Store, runner ToolRunner, provider ProviderFunc, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, tools: runner, provider: provider, log: log}
}

// Invalidate discards the chat; the next Send builds a fresh one from the
// current summary and history.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.chat = nil
	s.mu.Unlock()
}

func (s *Service) HasChat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat != nil
}

// Send runs one exchange for text. prior is the history as it was before the
// user's turn was appended; it seeds the chat when one has to be built.
// Every reply's text lands in the history as a final model turn, and tool
// calls are answered until the service replies without any.
func (s *Service) Send(ctx context.Context, text string, prior []bank.Turn) error {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	chat, err := s.ensureChat(ctx, prior)
	if err != nil {
		return s.fail(err)
	}

	reply, err := chat.SendText(ctx, text)
	for {
		if err != nil {
			return s.fail(err)
		}
		if reply == nil {
			return s.fail(errors.New("empty reply"))
		}
		if strings.TrimSpace(reply.Text) != "" {
			s.store.Dispatch(bank.UpsertChatMessage{
				Role:      bank.RoleModel,
				Text:      reply.Text,
				IsFinal:   true,
				Timestamp: time.Now(),
			})
		}
		if len(reply.ToolCalls) == 0 {
			return nil
		}

		responses := make([]ai.ToolResponse, 0, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			res := s.tools.Dispatch(call.Name, call.Args)
			s.log.Debug("text tool call", zap.String("tool", call.Name), zap.Any("result", res))
			responses = append(responses, ai.ToolResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: map[string]any{"result": map[string]any(res)},
			})
		}
		reply, err = chat.SendToolResponses(ctx, responses)
	}
}

func (s *Service) ensureChat(ctx context.Context, prior []bank.Turn) (ai.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chat != nil {
		return s.chat, nil
	}

	p, err := s.provider(ctx)
	if err != nil {
		return nil, err
	}
	st := s.store.Snapshot()
	chat, err := p.NewChat(ctx, ai.ChatConfig{
		SystemInstruction: persona.Instruction(st.Debug, st.Summary),
		Tools:             tools.Declarations(),
		History:           History(prior),
	})
	if err != nil {
		return nil, fmt.Errorf("open chat: %w", err)
	}
	s.chat = chat
	return chat, nil
}

func (s *Service) fail(err error) error {
	s.Invalidate()
	s.log.Error("text chat failed", zap.Error(err))
	s.store.Dispatch(bank.AddChatMessage{Turn: bank.Turn{
		Role:      bank.RoleSystem,
		Text:      RecoveryNotice,
		Timestamp: time.Now(),
		IsFinal:   true,
	}})
	return fmt.Errorf("text chat: %w", err)
}

// History converts chat turns to the remote service's message list. System
// turns and empty texts are local only.
func History(turns []bank.Turn) []ai.Message {
	out := make([]ai.Message, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		switch t.Role {
		case bank.RoleUser:
			out = append(out, ai.Message{Role: ai.RoleUser, Text: t.Text})
		case bank.RoleModel:
			out = append(out, ai.Message{Role: ai.RoleModel, Text: t.Text})
		}
	}
	return out
}
