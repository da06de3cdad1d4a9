package llmagent

import (
	"context"
	"errors"
	"testing"
)

func TestMockChatModel_ReturnsConfiguredResponse(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "hello"}}}

	out, err := mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "hello" {
		t.Fatalf("expected hello, got %q", out.Text)
	}
}

func TestMockChatModel_RepeatsLastResponseWhenExhausted(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "only"}}}

	first, _ := mock.Chat(context.Background(), nil, nil)
	second, _ := mock.Chat(context.Background(), nil, nil)
	third, _ := mock.Chat(context.Background(), nil, nil)

	if first.Text != "only" || second.Text != "only" || third.Text != "only" {
		t.Fatalf("expected every call to repeat the single response, got %q %q %q", first.Text, second.Text, third.Text)
	}
}

func TestMockChatModel_AdvancesThroughMultipleResponses(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "one"}, {Text: "two"}}}

	first, _ := mock.Chat(context.Background(), nil, nil)
	second, _ := mock.Chat(context.Background(), nil, nil)

	if first.Text != "one" || second.Text != "two" {
		t.Fatalf("expected sequential responses, got %q then %q", first.Text, second.Text)
	}
}

func TestMockChatModel_ReturnsEmptyWhenNoResponsesConfigured(t *testing.T) {
	mock := &MockChatModel{}

	out, err := mock.Chat(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "" || out.ToolCalls != nil {
		t.Fatalf("expected zero-value ChatOut, got %+v", out)
	}
}

func TestMockChatModel_ReturnsInjectedError(t *testing.T) {
	wantErr := errors.New("boom")
	mock := &MockChatModel{Err: wantErr}

	_, err := mock.Chat(context.Background(), nil, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestMockChatModel_RespectsCanceledContext(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "unused"}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mock.Chat(ctx, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMockChatModel_RecordsCallHistory(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "ok"}}}
	messages := []Message{{Role: RoleUser, Content: "hi"}}
	tools := []ToolSpec{{Name: "search"}}

	_, _ = mock.Chat(context.Background(), messages, tools)

	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 recorded call, got %d", mock.CallCount())
	}
	if mock.Calls[0].Messages[0].Content != "hi" || mock.Calls[0].Tools[0].Name != "search" {
		t.Fatalf("expected call history to capture arguments, got %+v", mock.Calls[0])
	}
}

func TestMockChatModel_ResetClearsHistoryAndIndex(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "one"}, {Text: "two"}}}
	_, _ = mock.Chat(context.Background(), nil, nil)
	_, _ = mock.Chat(context.Background(), nil, nil)

	mock.Reset()

	if mock.CallCount() != 0 {
		t.Fatalf("expected call count reset to 0, got %d", mock.CallCount())
	}
	out, _ := mock.Chat(context.Background(), nil, nil)
	if out.Text != "one" {
		t.Fatalf("expected response index rewound to first response, got %q", out.Text)
	}
}
