// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package crawler

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"adaptive-crawler/pkg/llm"
)

// mockProvider returns a fixed completion.
type mockProvider struct {
	response string
	err      error
	lastReq  *llm.CompletionRequest
}

func (m *mockProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &llm.CompletionResponse{Content: m.response, FinishReason: "stop"}, nil
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) ModelName() string { return "mock-model" }

func TestExpandQueryParsesWrappedJSON(t *testing.T) {
	p := &mockProvider{response: `{"queries": ["one variation", "two variation", "three variation"]}`}
	e := NewLLMQueryExpander(p)

	got, err := e.ExpandQuery(context.Background(), "base query", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"one variation", "two variation", "three variation"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if !p.lastReq.JSONMode {
		t.Error("expander must request JSON mode")
	}
}

func TestExpandQueryTooFewVariations(t *testing.T) {
	p := &mockProvider{response: `{"queries": ["only one"]}`}
	e := NewLLMQueryExpander(p)
	if _, err := e.ExpandQuery(context.Background(), "base", 5); err == nil {
		t.Fatal("expected error for too few variations")
	}
}

func TestExpandQueryProviderError(t *testing.T) {
	p := &mockProvider{err: errors.New("rate limited")}
	e := NewLLMQueryExpander(p)
	if _, err := e.ExpandQuery(context.Background(), "base", 2); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestParseQueryVariations(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    []string
		wantErr bool
	}{
		{"wrapped object", `{"queries": ["a b c", "d e f"]}`, []string{"a b c", "d e f"}, false},
		{"bare array", `["a b c", "d e f"]`, []string{"a b c", "d e f"}, false},
		{"fenced array", "```json\n[\"a b c\"]\n```", []string{"a b c"}, false},
		{"blank entries dropped", `["keep", "  ", ""]`, []string{"keep"}, false},
		{"prose only", "I cannot help with that.", nil, true},
		{"empty", "", nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseQueryVariations(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
