package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"pdf-query-assistant/internal/logger"
)

const geminiModel = "gemini-2.0-flash"

// Free-tier request budget, with headroom left for the embedding calls that
// share the same key.
const geminiRequestsPerMinute = 10

// geminiBackend generates through the Google Generative AI API, guarded by
// a circuit breaker and a client-side rate limiter so a flapping or
// throttled upstream degrades into fast per-call failures.
type geminiBackend struct {
	client      *genai.Client
	temperature float64
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

func newGeminiBackend(apiKey string, temperature float64) (*geminiBackend, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	rateLimiter := rate.NewLimiter(rate.Limit(float64(geminiRequestsPerMinute)*0.9/60.0), 2)

	return &geminiBackend{
		client:      client,
		temperature: temperature,
		breaker:     breaker,
		rateLimiter: rateLimiter,
	}, nil
}

func (b *geminiBackend) Generate(ctx context.Context, system, user string) (string, error) {
	tracer := otel.Tracer("rag-gemini")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", geminiModel),
		attribute.Int("gemini.prompt_chars", len(user)),
	)

	if err := b.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", err
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		model := b.client.GenerativeModel(geminiModel)
		model.SetTemperature(float32(b.temperature))
		model.SetMaxOutputTokens(2048)
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}

		resp, err := model.GenerateContent(ctx, genai.Text(user))
		if err != nil {
			return nil, err
		}
		text := extractResponseText(resp)
		if text == "" {
			return nil, fmt.Errorf("gemini returned no text candidates")
		}
		return text, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "", fmt.Errorf("gemini temporarily unavailable (circuit open)")
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", err
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return result.(string), nil
}

func extractResponseText(resp *genai.GenerateContentResponse) string {
	var text string
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
	}
	return text
}

func (b *geminiBackend) Close() error {
	return b.client.Close()
}
