package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetCachesProvider(t *testing.T) {
	reg := NewRegistry()
	builds := 0
	reg.Register(" Mock ", func(ctx context.Context) (Provider, error) {
		builds++
		return NewMockProvider(), nil
	})

	p1, err := reg.Get(context.Background(), "mock")
	require.NoError(t, err)
	p2, err := reg.Get(context.Background(), "MOCK")
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	assert.Equal(t, 1, builds)
	assert.Equal(t, []string{"mock"}, reg.Names())
}

func TestRegistry_UnknownAndFailingFactory(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get(context.Background(), "nope")
	assert.ErrorContains(t, err, "unknown ai provider")

	reg.Register("broken", func(ctx context.Context) (Provider, error) {
		return nil, errors.New("no key")
	})
	_, err = reg.Get(context.Background(), "broken")
	assert.ErrorContains(t, err, "no key")
}

func TestMockChat_NavigatesThenConfirms(t *testing.T) {
	chat, err := NewMockProvider().NewChat(context.Background(), ChatConfig{})
	require.NoError(t, err)

	r, err := chat.SendText(context.Background(), "I want to buy some Yen")
	require.NoError(t, err)
	require.Len(t, r.ToolCalls, 1)
	assert.Equal(t, "navigate", r.ToolCalls[0].Name)
	assert.Equal(t, "fx-trading", r.ToolCalls[0].Args["screen"])

	r, err = chat.SendToolResponses(context.Background(), []ToolResponse{{ID: r.ToolCalls[0].ID, Name: "navigate"}})
	require.NoError(t, err)
	assert.Empty(t, r.ToolCalls)
	assert.Contains(t, r.Text, "navigate")
}

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(&Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"amount": {Type: TypeNumber},
			"active": {Type: TypeBoolean},
			"screen": {Type: TypeString, Enum: []string{"home"}},
		},
		Required: []string{"amount"},
	})
	require.NotNil(t, s)
	assert.EqualValues(t, "OBJECT", s.Type)
	assert.EqualValues(t, "NUMBER", s.Properties["amount"].Type)
	assert.EqualValues(t, "BOOLEAN", s.Properties["active"].Type)
	assert.Equal(t, []string{"home"}, s.Properties["screen"].Enum)
	assert.Equal(t, []string{"amount"}, s.Required)
}
