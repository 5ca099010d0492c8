package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string { return s.name }
func (s stubProvider) Chat(context.Context, ChatRequest) (ChatResponse, error) {
	return ChatResponse{}, nil
}
func (s stubProvider) Stream(context.Context, ChatRequest) (<-chan StreamChunk, <-chan error) {
	return nil, nil
}

func TestResolveDefaultModel(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterProvider("copilot", stubProvider{name: "copilot"})
	reg.RegisterModel("gpt-5-mini", ModelRoute{Provider: "copilot", Model: "gpt-5-mini"}, true)
	reg.RegisterModel("gpt-4o", ModelRoute{Provider: "copilot", Model: "gpt-4o"}, false)

	p, route, err := reg.Resolve("")
	require.NoError(t, err)
	require.Equal(t, "copilot", p.Name())
	require.Equal(t, "gpt-5-mini", route.Name)
	require.True(t, route.Default)
}

func TestResolveUnknownModelFails(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterProvider("copilot", stubProvider{name: "copilot"})
	reg.RegisterModel("gpt-5-mini", ModelRoute{Provider: "copilot"}, true)

	_, _, err := reg.Resolve("missing")
	require.Error(t, err)
}

func TestListIsSorted(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterProvider("copilot", stubProvider{name: "copilot"})
	reg.RegisterModel("zeta", ModelRoute{Provider: "copilot"}, false)
	reg.RegisterModel("alpha", ModelRoute{Provider: "copilot"}, true)

	routes := reg.List()
	require.Len(t, routes, 2)
	require.Equal(t, "alpha", routes[0].Name)
	require.Equal(t, "zeta", routes[1].Name)
}
