package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"lms-assistant-backend/internal/config"
	"lms-assistant-backend/internal/logger"
)

// ErrGenerationUnavailable signals that the generation backend cannot serve
// the request (missing key, open breaker, timeout). The answer generator
// falls back to a deterministic templated response.
var ErrGenerationUnavailable = errors.New("generation backend unavailable")

// Generator produces a completion for a system prompt and user message.
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
	Available() bool
}

// GeminiGenerator wraps the Gemini generation API with a circuit breaker and
// a client-side rate limiter sized to the account tier.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	timeout     time.Duration
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	available   bool
}

type rateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func getRateLimits(tier string) rateLimits {
	switch tier {
	case "free":
		return rateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return rateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return rateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return rateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

func NewGeminiGenerator(cfg *config.Config) (*GeminiGenerator, error) {
	g := &GeminiGenerator{
		model:   cfg.GeminiModel,
		timeout: time.Duration(cfg.GenerationTimeout) * time.Second,
	}

	limits := getRateLimits(cfg.GeminiTier)
	// RPM limit with some buffer
	g.rateLimiter = rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), maxInt(limits.RPM/10, 1))

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, generation backend unavailable")
		return g, nil
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		logger.Error("failed to create Gemini client for generation", "error", err)
		return g, nil
	}

	g.client = client
	g.available = true
	return g, nil
}

func (g *GeminiGenerator) Available() bool { return g.available }

// Complete runs one completion under the breaker, the rate limiter and a
// hard timeout. A hung backend can never hang the caller past the timeout.
func (g *GeminiGenerator) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if !g.available {
		return "", ErrGenerationUnavailable
	}

	tracer := otel.Tracer("gemini-generator")
	ctx, span := tracer.Start(ctx, "gemini.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.model),
		attribute.Int("gemini.prompt_chars", len(systemPrompt)+len(userMessage)),
	)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		model := g.client.GenerativeModel(g.model)
		model.SetTemperature(0.7)
		model.SetMaxOutputTokens(2048)
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}

		resp, err := model.GenerateContent(ctx, genai.Text(userMessage))
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	text := extractText(result.(*genai.GenerateContentResponse))
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrGenerationUnavailable)
	}

	span.SetAttributes(attribute.Int("gemini.response_chars", len(text)))
	return text, nil
}

func (g *GeminiGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// extractText flattens the first candidate's text parts.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var out string
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out += string(text)
			}
		}
		break
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
