package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	gradeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "proctorly",
		Subsystem: "grading",
		Name:      "model_duration_seconds",
		Help:      "Duration of grading model requests",
	}, []string{"model"})

	gradeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proctorly",
		Subsystem: "grading",
		Name:      "model_failures_total",
		Help:      "Number of grading model failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI evaluator.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	Logger      zerolog.Logger
}

// OpenAIEvaluator implements Evaluator against the OpenAI chat completion API.
type OpenAIEvaluator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIEvaluator builds a new evaluator using the provided configuration.
func NewOpenAIEvaluator(cfg OpenAIConfig) (*OpenAIEvaluator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)

	return &OpenAIEvaluator{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/proctorly/exam-api/pkg/ai/openai"),
		logger: logger,
	}, nil
}

// Evaluate sends the grading request to OpenAI and parses the response. The
// request carries its own timeout so callers never block on the model.
func (e *OpenAIEvaluator) Evaluate(parent context.Context, input GradingInput) (GradingResult, error) {
	ctx, span := e.tracer.Start(parent, "openai.grade", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: graderSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildGraderPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := e.client.CreateChatCompletion(ctx, request)
	gradeDuration.WithLabelValues(e.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		gradeFailures.WithLabelValues(e.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GradingResult{}, fmt.Errorf("openai grade: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		gradeFailures.WithLabelValues(e.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GradingResult{}, err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := ParseGradingResponse(content, input.MaxPoints)
	if err != nil {
		gradeFailures.WithLabelValues(e.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GradingResult{}, err
	}

	return result, nil
}

func graderSystemPrompt() string {
	return "You are an automated exam grader. Respond with a JSON object containing score (integer points awarded), feedback " +
		"(short explanation), optional suggestions (array of strings) and optional detail object breaking the score down. " +
		"Never award more than the stated maximum points."
}

func buildGraderPrompt(input GradingInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Problem\n")
	builder.WriteString(input.Prompt)
	builder.WriteString("\n\n## Language\n")
	builder.WriteString(input.LanguageID)
	if input.StarterCode != "" {
		builder.WriteString("\n\n## Starter Code\n")
		builder.WriteString(input.StarterCode)
	}
	builder.WriteString("\n\n## Submission\n")
	builder.WriteString(input.SubmissionSource)
	builder.WriteString("\n\n## Execution Verdict\n")
	builder.WriteString(input.Verdict)
	if input.RuntimeOutput != "" {
		builder.WriteString("\n\n## Program Output\n")
		builder.WriteString(input.RuntimeOutput)
	}
	fmt.Fprintf(&builder, "\n\n## Maximum Points\n%d\n", input.MaxPoints)
	builder.WriteString("Return JSON.")
	return builder.String()
}

// ParseGradingResponse validates the raw model payload against the grading
// schema before decoding it, then clamps the score into [0, maxPoints].
// Schema-invalid payloads are rejected so callers can fall back.
func ParseGradingResponse(content string, maxPoints int) (GradingResult, error) {
	var raw interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return GradingResult{}, fmt.Errorf("parse grading json: %w", err)
	}

	if err := compiledGradingSchema.Validate(raw); err != nil {
		return GradingResult{}, fmt.Errorf("grading response rejected by schema: %w", err)
	}

	type payload struct {
		Score       float64                `json:"score"`
		Feedback    string                 `json:"feedback"`
		Suggestions []string               `json:"suggestions"`
		Detail      map[string]interface{} `json:"detail"`
	}

	var data payload
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return GradingResult{}, fmt.Errorf("decode grading json: %w", err)
	}

	score := int(math.Round(data.Score))
	if score < 0 {
		score = 0
	}
	if score > maxPoints {
		score = maxPoints
	}

	return GradingResult{
		Score:       score,
		Feedback:    data.Feedback,
		Suggestions: data.Suggestions,
		Detail:      data.Detail,
	}, nil
}
