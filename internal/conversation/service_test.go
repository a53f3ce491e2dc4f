package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"voicecoach/internal/apperr"
	"voicecoach/internal/upstream/gemini"
)

type fakeGenerator struct {
	answer   string
	err      error
	req      gemini.GenerateRequest
	deadline bool
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, req gemini.GenerateRequest) (string, error) {
	f.req = req
	_, f.deadline = ctx.Deadline()
	return f.answer, f.err
}

func TestBuildPromptKnownContexts(t *testing.T) {
	prompt := BuildPrompt(PromptInput{Text: "Tenho cinco anos de experiência.", Language: "pt", Context: ContextJobInterview, History: "Entrevistador: Fale sobre você."})

	if !strings.HasPrefix(prompt, "Responda em português. Você é um entrevistador profissional") {
		t.Fatalf("unexpected prompt start: %q", prompt[:80])
	}
	if !strings.Contains(prompt, "Não inclua saudações") {
		t.Fatal("expected anti-greeting instruction")
	}
	if !strings.Contains(prompt, "Histórico da conversa:\nEntrevistador: Fale sobre você.\n\n") {
		t.Fatal("expected history block")
	}
	if !strings.HasSuffix(prompt, "Pergunta ou diálogo atual: Tenho cinco anos de experiência.") {
		t.Fatalf("expected current utterance last: %q", prompt)
	}

	airport := BuildPrompt(PromptInput{Text: "Where is gate 12?", Language: "en", Context: ContextAirport})
	if !strings.HasPrefix(airport, "Respond in English. Você é um funcionário de um aeroporto") {
		t.Fatalf("unexpected airport prompt: %q", airport[:80])
	}
}

func TestBuildPromptCustomContextEmbedsVerbatim(t *testing.T) {
	prompt := BuildPrompt(PromptInput{Text: "hi", Language: "en", Context: "ordering at a café in Lisbon"})
	if !strings.Contains(prompt, "contexto personalizado: ordering at a café in Lisbon.") {
		t.Fatalf("custom context not embedded: %q", prompt)
	}
}

func TestReplyUsesFixedSamplingAndTrims(t *testing.T) {
	gen := &fakeGenerator{answer: "  Why do you want this role?\n"}
	svc := New(gen, time.Second)

	answer, err := svc.Reply(context.Background(), Input{Text: "I'm ready", Language: "en", Context: ContextJobInterview})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if answer != "Why do you want this role?" {
		t.Fatalf("unexpected answer: %q", answer)
	}
	if gen.req.Config != DefaultGenerationConfig {
		t.Fatalf("unexpected config: %+v", gen.req.Config)
	}
	if !gen.deadline {
		t.Fatal("expected timeout on upstream context")
	}
}

func TestReplyMapsUpstreamFailure(t *testing.T) {
	svc := New(&fakeGenerator{err: errors.New("no candidates returned")}, 0)

	_, err := svc.Reply(context.Background(), Input{Text: "hello", Language: "en", Context: ContextAirport})
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("unexpected kind: %v", err)
	}
	if !strings.Contains(err.Error(), "no candidates returned") {
		t.Fatalf("expected cause in message: %v", err)
	}
}

func TestReplyRejectsEmptyText(t *testing.T) {
	gen := &fakeGenerator{answer: "x"}
	_, err := New(gen, 0).Reply(context.Background(), Input{Text: "   ", Language: "en"})
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("unexpected kind: %v", err)
	}
	if gen.req.Prompt != "" {
		t.Fatal("upstream must not be called")
	}
}

func TestReplyEmptyAnswerIsUpstreamError(t *testing.T) {
	_, err := New(&fakeGenerator{answer: " "}, 0).Reply(context.Background(), Input{Text: "hi", Language: "pt"})
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("unexpected kind: %v", err)
	}
}
