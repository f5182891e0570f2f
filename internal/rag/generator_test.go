package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pdf-query-assistant/internal/vectorindex"
)

// stubBackend records calls and returns a canned answer or failure.
type stubBackend struct {
	calls      int
	lastSystem string
	lastUser   string
	answer     string
	err        error
}

func (s *stubBackend) Generate(_ context.Context, system, user string) (string, error) {
	s.calls++
	s.lastSystem = system
	s.lastUser = user
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func (s *stubBackend) Close() error { return nil }

func newStubGenerator(b backend) *Generator {
	return &Generator{provider: ProviderGemini, temperature: 0.7, backend: b}
}

func TestParseProvider(t *testing.T) {
	for _, s := range []string{"gemini", "GROQ", " cohere "} {
		p, err := ParseProvider(s)
		if err != nil {
			t.Fatalf("ParseProvider(%q): %v", s, err)
		}
		if CredentialVar(p) == "" {
			t.Fatalf("ParseProvider(%q): no credential variable for %q", s, p)
		}
	}
	for _, s := range []string{"", "openai", "claude", "gem ini"} {
		_, err := ParseProvider(s)
		if !errors.Is(err, ErrUnsupportedProvider) {
			t.Fatalf("ParseProvider(%q): expected ErrUnsupportedProvider, got %v", s, err)
		}
	}
}

func TestNewUnsupportedProvider(t *testing.T) {
	_, err := New(Provider("openai"), 0.7)
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestNewMissingCredential(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	_, err := New(ProviderGroq, 0.7)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Fatalf("error must name the expected variable, got %q", err.Error())
	}
}

func TestNewInvalidTemperature(t *testing.T) {
	for _, temp := range []float64{-0.1, 1.5} {
		if _, err := New(ProviderGroq, temp); err == nil {
			t.Fatalf("temperature %v: expected error", temp)
		}
	}
}

func TestGenerateEmptyRetrievalUsesFallback(t *testing.T) {
	stub := &stubBackend{answer: "should not appear"}
	g := newStubGenerator(stub)

	answer := g.Generate(context.Background(), "What is this about?", nil)
	if answer != fallbackAnswer {
		t.Fatalf("expected fixed fallback, got %q", answer)
	}
	if stub.calls != 0 {
		t.Fatalf("backend must not be called for empty retrieval, saw %d calls", stub.calls)
	}
}

func TestGeneratePromptConstruction(t *testing.T) {
	stub := &stubBackend{answer: "grounded answer"}
	g := newStubGenerator(stub)

	retrieved := []vectorindex.Result{
		{ID: 2, Chunk: "Cats are mammals.", Score: 0.1},
		{ID: 0, Chunk: "The cat sat.", Score: 0.3},
	}
	answer := g.Generate(context.Background(), "Tell me about cats", retrieved)
	if answer != "grounded answer" {
		t.Fatalf("expected backend answer, got %q", answer)
	}
	if stub.calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", stub.calls)
	}
	if stub.lastSystem != systemInstruction {
		t.Fatalf("system instruction not passed through")
	}

	// Chunks joined by a blank line, in ranked order, scores excluded.
	wantContext := "Cats are mammals.\n\nThe cat sat."
	wantUser := fmt.Sprintf("Context:\n%s\n\nQuestion: Tell me about cats\n\nAnswer:", wantContext)
	if stub.lastUser != wantUser {
		t.Fatalf("prompt mismatch\nwant: %q\ngot:  %q", wantUser, stub.lastUser)
	}
	if strings.Contains(stub.lastUser, "0.1") {
		t.Fatal("scores leaked into the prompt")
	}
}

func TestGenerateBackendFailureIsSurfacedNotPropagated(t *testing.T) {
	stub := &stubBackend{err: errors.New("rate limit exceeded")}
	g := newStubGenerator(stub)

	retrieved := []vectorindex.Result{{ID: 0, Chunk: "The cat sat.", Score: 0.1}}
	answer := g.Generate(context.Background(), "Tell me about cats", retrieved)
	if !strings.HasPrefix(answer, "Error generating response:") {
		t.Fatalf("expected inline error string, got %q", answer)
	}
	if !strings.Contains(answer, "rate limit exceeded") {
		t.Fatalf("error detail lost: %q", answer)
	}
}

func TestSwitchProviderMissingCredentialKeepsBackend(t *testing.T) {
	t.Setenv("COHERE_API_KEY", "")
	stub := &stubBackend{answer: "still works"}
	g := newStubGenerator(stub)

	err := g.SwitchProvider(ProviderCohere)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if g.Provider() != ProviderGemini {
		t.Fatalf("failed switch must not change provider, got %q", g.Provider())
	}
	retrieved := []vectorindex.Result{{ID: 0, Chunk: "The cat sat.", Score: 0.1}}
	if answer := g.Generate(context.Background(), "q", retrieved); answer != "still works" {
		t.Fatalf("previous backend lost after failed switch: %q", answer)
	}
}

func TestSwitchProviderSuccess(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "test-key")
	stub := &stubBackend{answer: "old"}
	g := newStubGenerator(stub)

	if err := g.SwitchProvider(ProviderGroq); err != nil {
		t.Fatalf("SwitchProvider: %v", err)
	}
	if g.Provider() != ProviderGroq {
		t.Fatalf("provider not updated: %q", g.Provider())
	}
}

func TestSwitchProviderUnsupported(t *testing.T) {
	stub := &stubBackend{}
	g := newStubGenerator(stub)
	err := g.SwitchProvider(Provider("claude"))
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestSetTemperatureValidation(t *testing.T) {
	g := newStubGenerator(&stubBackend{})
	if err := g.SetTemperature(1.2); err == nil {
		t.Fatal("expected error for temperature out of range")
	}
	if g.Temperature() != 0.7 {
		t.Fatalf("failed SetTemperature must not change state, got %v", g.Temperature())
	}
}

// blockingBackend parks inside Generate until released, and records when
// it gets closed.
type blockingBackend struct {
	entered chan struct{}
	release chan struct{}
	closed  atomic.Bool
}

func (b *blockingBackend) Generate(_ context.Context, _, _ string) (string, error) {
	close(b.entered)
	<-b.release
	if b.closed.Load() {
		return "", errors.New("generate called on closed backend")
	}
	return "slow answer", nil
}

func (b *blockingBackend) Close() error {
	b.closed.Store(true)
	return nil
}

// A provider switch must wait out an in-flight generation rather than
// closing the client underneath it.
func TestSwitchProviderWaitsForInFlightGeneration(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "test-key")

	b := &blockingBackend{entered: make(chan struct{}), release: make(chan struct{})}
	g := newStubGenerator(b)
	retrieved := []vectorindex.Result{{ID: 0, Chunk: "Cats are mammals."}}

	answered := make(chan string, 1)
	go func() { answered <- g.Generate(context.Background(), "what is a cat?", retrieved) }()
	<-b.entered

	switched := make(chan error, 1)
	go func() { switched <- g.SwitchProvider(ProviderGroq) }()

	// Give the switch a chance to run; it must stay blocked behind the
	// generation instead of closing the active backend.
	time.Sleep(20 * time.Millisecond)
	if b.closed.Load() {
		t.Fatal("backend closed while a generation was in flight")
	}

	close(b.release)
	if answer := <-answered; answer != "slow answer" {
		t.Fatalf("in-flight generation returned %q", answer)
	}
	if err := <-switched; err != nil {
		t.Fatalf("SwitchProvider: %v", err)
	}
	if !b.closed.Load() {
		t.Error("previous backend not closed after the switch completed")
	}
	if g.Provider() != ProviderGroq {
		t.Errorf("provider = %q after switch, want groq", g.Provider())
	}
}
