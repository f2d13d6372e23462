package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/calbook/plugin/ai/schedule"
	"github.com/hrygo/calbook/plugin/ai/timeout"
)

// LLMConfig holds configuration for the LLM oracle.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// LLMOracle interprets utterances with an OpenAI-compatible chat model
// constrained to a strict JSON schema. When the model cannot be reached or
// answers with something unusable it defers to the fallback oracle.
type LLMOracle struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	fallback Oracle
}

var _ Oracle = (*LLMOracle)(nil)

// NewLLMOracle creates a new LLM-based oracle. fallback may be nil.
func NewLLMOracle(cfg LLMConfig, fallback Oracle) *LLMOracle {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return newLLMOracle(openai.NewClientWithConfig(clientConfig), cfg.Model, cfg.Timeout, fallback)
}

func newLLMOracle(client *openai.Client, model string, to time.Duration, fallback Oracle) *LLMOracle {
	if model == "" {
		model = openai.GPT4oMini
	}
	if to <= 0 {
		to = timeout.OracleTimeout
	}
	return &LLMOracle{client: client, model: model, timeout: to, fallback: fallback}
}

// Name implements Oracle.
func (o *LLMOracle) Name() string {
	return "llm"
}

// Interpret implements Oracle.
func (o *LLMOracle) Interpret(ctx context.Context, utterance string, cc ConversationContext) (schedule.Intent, error) {
	intent, err := o.interpret(ctx, utterance, cc)
	if err == nil || errors.Is(err, ErrUninterpretable) || o.fallback == nil {
		return intent, err
	}
	slog.Warn("LLM interpretation failed, using fallback",
		"error", err,
		"fallback", o.fallback.Name(),
		"input", truncateString(utterance, timeout.MaxTruncateLength))
	return o.fallback.Interpret(ctx, utterance, cc)
}

func (o *LLMOracle) interpret(ctx context.Context, utterance string, cc ConversationContext) (schedule.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: buildSystemPrompt(cc),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(utterance, cc),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "calendar_intent",
				Strict: true,
				Schema: intentJSONSchema,
			},
		},
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	latency := time.Since(start)
	if err != nil {
		slog.Error("LLM interpretation request failed",
			"error", err,
			"latency_ms", latency.Milliseconds())
		return schedule.Intent{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return schedule.Intent{}, fmt.Errorf("%w: empty response", ErrInvalidOracleOutput)
	}

	content := resp.Choices[0].Message.Content
	intent, err := parseIntentResponse(content)
	if err != nil {
		slog.Warn("Failed to parse LLM response",
			"content", truncateString(content, timeout.MaxTruncateLength),
			"error", err)
		return schedule.Intent{}, err
	}

	slog.Debug("LLM interpretation completed",
		"kind", intent.Kind,
		"latency_ms", latency.Milliseconds(),
		"tokens", resp.Usage.TotalTokens)
	return intent, nil
}

var codeFencePattern = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// llmIntent mirrors intentJSONSchema. Strict mode fills every property, so
// absent slots arrive as empty strings.
type llmIntent struct {
	Kind        string   `json:"kind"`
	Title       string   `json:"title"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Duration    string   `json:"duration"`
	Description string   `json:"description"`
	Range       string   `json:"range"`
	Guests      []string `json:"guests"`
	Target      struct {
		ID        string `json:"id"`
		Pronoun   bool   `json:"pronoun"`
		TitleHint string `json:"title_hint"`
		DateHint  string `json:"date_hint"`
		TimeHint  string `json:"time_hint"`
	} `json:"target"`
	Corrections []string `json:"corrections"`
}

// parseIntentResponse decodes the model's JSON answer into an intent.
func parseIntentResponse(content string) (schedule.Intent, error) {
	content = strings.TrimSpace(content)
	// Some providers wrap JSON in markdown code blocks despite the schema.
	if strings.HasPrefix(content, "```") {
		if m := codeFencePattern.FindStringSubmatch(content); len(m) > 1 {
			content = m[1]
		}
	}

	var raw llmIntent
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return schedule.Intent{}, fmt.Errorf("%w: %v", ErrInvalidOracleOutput, err)
	}

	kind := schedule.Kind(strings.ToLower(strings.TrimSpace(raw.Kind)))
	if kind == "none" || kind == "" {
		return schedule.Intent{}, ErrUninterpretable
	}
	if !kind.Valid() {
		return schedule.Intent{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidOracleOutput, raw.Kind)
	}

	intent := schedule.Intent{
		Kind:        kind,
		Title:       strings.TrimSpace(raw.Title),
		Start:       strings.TrimSpace(raw.Start),
		End:         strings.TrimSpace(raw.End),
		Duration:    strings.TrimSpace(raw.Duration),
		Description: strings.TrimSpace(raw.Description),
		Range:       strings.TrimSpace(raw.Range),
		Corrections: raw.Corrections,
	}
	for _, g := range raw.Guests {
		if g = strings.TrimSpace(g); g != "" {
			intent.Guests = append(intent.Guests, g)
		}
	}
	ref := schedule.EventRef{
		ID:        strings.TrimSpace(raw.Target.ID),
		Pronoun:   raw.Target.Pronoun,
		TitleHint: strings.TrimSpace(raw.Target.TitleHint),
		DateHint:  strings.TrimSpace(raw.Target.DateHint),
		TimeHint:  strings.TrimSpace(raw.Target.TimeHint),
	}
	if !ref.IsZero() {
		intent.Target = &ref
	}
	return intent, nil
}

// buildSystemPrompt injects the current time so the model can tell which
// Friday "this Friday" is.
func buildSystemPrompt(cc ConversationContext) string {
	now := cc.Now
	if cc.Location != nil {
		now = now.In(cc.Location)
	}
	return fmt.Sprintf(intentSystemPrompt,
		now.Format("Monday, 02 January 2006 15:04 MST"),
		now.Format(time.RFC3339))
}

func buildUserPrompt(utterance string, cc ConversationContext) string {
	var b strings.Builder
	if history := cc.ToHistoryPrompt(); history != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(history)
		b.WriteString("\n")
	}
	if state := cc.ToStatePrompt(); state != "" {
		b.WriteString(state)
		b.WriteString("\n\n")
	}
	b.WriteString("User: ")
	b.WriteString(utterance)
	return b.String()
}

const intentSystemPrompt = `You extract calendar intents. Current time: %s (%s).

kind: create_event, edit_event, delete_event, list_events, check_availability, or none when the message is not a calendar request.
Copy time expressions exactly as the user wrote them ("tomorrow at 2 PM", "Friday", "in 2 hours"); never convert them yourself.
start/end/duration: the new times of an event. range: the span to list or check ("this week").
target: the existing event an edit or delete refers to. Set pronoun for "it"/"that meeting"; put any date, time or title the user used to identify the event into the hints.
If a request awaiting details is shown, a message that only supplies details keeps its kind.
corrections: slots the user explicitly corrects ("actually make it 4" corrects start).
Leave every slot the user did not mention empty. Never invent values.`

// intentJSONSchema defines the strict output schema for interpretation.
// Using enum to constrain kind values and prevent hallucination.
var intentJSONSchema = func() *jsonSchema {
	str := func(desc string) *jsonSchema { return &jsonSchema{Type: "string", Description: desc} }
	return &jsonSchema{
		Type: "object",
		Properties: map[string]*jsonSchema{
			"kind": {
				Type: "string",
				Enum: []string{
					string(schedule.KindCreateEvent),
					string(schedule.KindEditEvent),
					string(schedule.KindDeleteEvent),
					string(schedule.KindListEvents),
					string(schedule.KindCheckAvailability),
					"none",
				},
				Description: "The requested operation",
			},
			"title":       str("Event title, or the new title of an edited event"),
			"start":       str("Start time as phrased by the user"),
			"end":         str("End time as phrased by the user"),
			"duration":    str("Duration as phrased by the user"),
			"description": str("Event description"),
			"range":       str("Span to list or check, as phrased by the user"),
			"guests": {
				Type:        "array",
				Items:       &jsonSchema{Type: "string"},
				Description: "Guest email addresses",
			},
			"target": {
				Type: "object",
				Properties: map[string]*jsonSchema{
					"id":         str("Event id if the user quoted one"),
					"pronoun":    {Type: "boolean", Description: "The user referred to the event as it/that"},
					"title_hint": str("Words identifying the event by title"),
					"date_hint":  str("Day the event is on, as phrased by the user"),
					"time_hint":  str("Time the event starts, as phrased by the user"),
				},
				Required:             []string{"id", "pronoun", "title_hint", "date_hint", "time_hint"},
				AdditionalProperties: new(bool),
			},
			"corrections": {
				Type: "array",
				Items: &jsonSchema{
					Type: "string",
					Enum: []string{
						schedule.FieldTitle, schedule.FieldStart, schedule.FieldEnd,
						schedule.FieldDuration, schedule.FieldDescription, schedule.FieldRange,
						schedule.FieldGuests, schedule.FieldTarget,
					},
				},
			},
		},
		Required: []string{
			"kind", "title", "start", "end", "duration", "description",
			"range", "guests", "target", "corrections",
		},
		AdditionalProperties: new(bool),
	}
}()

// jsonSchema implements json.Marshaler for OpenAI's JSON Schema format.
type jsonSchema struct {
	Type                 string                 `json:"type"`
	Properties           map[string]*jsonSchema `json:"properties,omitempty"`
	Items                *jsonSchema            `json:"items,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Description          string                 `json:"description,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
}

func (s *jsonSchema) MarshalJSON() ([]byte, error) {
	type alias jsonSchema
	return json.Marshal((*alias)(s))
}
