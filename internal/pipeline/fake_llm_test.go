package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kellogg/sentrychat/internal/infrastructure/llm"
)

// fakeLLMClient is a scripted llm.Client shared across this package's stage
// tests: each call to ChatJSON/Chat pops the next queued response or error.
type fakeLLMClient struct {
	jsonResponses []interface{}
	jsonErrs      []error
	chatResponses []string
	chatErrs      []error
	calls         int
}

func (f *fakeLLMClient) ChatJSON(ctx context.Context, req llm.ChatRequest, out interface{}) error {
	i := f.calls
	f.calls++
	if i < len(f.jsonErrs) && f.jsonErrs[i] != nil {
		return f.jsonErrs[i]
	}
	if i >= len(f.jsonResponses) {
		return errors.New("fakeLLMClient: no scripted JSON response")
	}
	b, err := json.Marshal(f.jsonResponses[i])
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (f *fakeLLMClient) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.chatErrs) && f.chatErrs[i] != nil {
		return llm.ChatResponse{}, f.chatErrs[i]
	}
	if i >= len(f.chatResponses) {
		return llm.ChatResponse{}, errors.New("fakeLLMClient: no scripted chat response")
	}
	return llm.ChatResponse{Content: f.chatResponses[i]}, nil
}

func (f *fakeLLMClient) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (f *fakeLLMClient) Embed(ctx context.Context, model, input string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeLLMClient) EmbedBatch(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (f *fakeLLMClient) Ping(ctx context.Context) error { return nil }

func (f *fakeLLMClient) Close() error { return nil }
