// Package assist calls the OpenAI Responses API for the AI-assisted parts of
// the workbench: interpreting a description into keywords, suggesting more
// keywords and generating preview text.
package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/logger"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-5-mini"

type responder interface {
	New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error)
}

// Client wraps the Responses API. A Client without an API key is valid but
// every call fails with INVALID_REQUEST.
type Client struct {
	model string
	log   *logger.Logger

	// complete sends params and returns the response text.
	complete func(ctx context.Context, params responses.ResponseNewParams) (string, error)
}

// New creates a client. An empty apiKey leaves the assistant unconfigured.
func New(apiKey, model string, log *logger.Logger) *Client {
	if model == "" {
		model = DefaultModel
	}
	c := &Client{model: model, log: logger.OrNop(log).With("component", "assist")}
	if apiKey == "" {
		return c
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	c.complete = func(ctx context.Context, params responses.ResponseNewParams) (string, error) {
		resp, err := callWithRetry(ctx, &client.Responses, params)
		if err != nil {
			return "", err
		}
		return resp.OutputText(), nil
	}
	return c
}

// Configured reports whether calls can reach the API.
func (c *Client) Configured() bool {
	return c != nil && c.complete != nil
}

// Model returns the model used for requests.
func (c *Client) Model() string {
	return c.model
}

func notConfigured() error {
	return errors.NewInvalidRequest("assistant not configured (set OPENAI_API_KEY)")
}

type suggestion struct {
	Word   string `json:"word" jsonschema:"required,description=One to three words"`
	Weight int    `json:"weight" jsonschema:"required,minimum=0,maximum=5"`
}

type interpretResponse struct {
	Topic    string       `json:"topic" jsonschema:"required,description=Short title for the subject"`
	Positive []suggestion `json:"positive" jsonschema:"required,description=Keywords to emphasize"`
	Negative []suggestion `json:"negative" jsonschema:"required,description=Keywords to avoid"`
}

type augmentResponse struct {
	Keywords []suggestion `json:"keywords" jsonschema:"required"`
}

var (
	interpretSchema = GenerateSchema[interpretResponse]()
	augmentSchema   = GenerateSchema[augmentResponse]()
)

// Interpretation is a topic plus starting keyword sets.
type Interpretation struct {
	Topic    string
	Positive []keyword.Record
	Negative []keyword.Record
}

// Interpret turns a natural-language description into a topic and keywords.
// limit bounds how many keywords per polarity the model is asked for.
func (c *Client) Interpret(ctx context.Context, text string, limit int) (*Interpretation, error) {
	if !c.Configured() {
		return nil, notConfigured()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.NewInvalidRequest("text is required")
	}

	var out interpretResponse
	params := c.jsonParams(fmt.Sprintf(interpretPrompt, limit), text, "Interpretation", "Topic and keyword lists", interpretSchema)
	if err := c.call(ctx, "interpret", params, &out); err != nil {
		return nil, err
	}

	return &Interpretation{
		Topic:    strings.TrimSpace(out.Topic),
		Positive: toRecords(keyword.Positive, out.Positive, nil),
		Negative: toRecords(keyword.Negative, out.Negative, nil),
	}, nil
}

// AugmentInput describes the collection to extend.
type AugmentInput struct {
	Topic    string
	Polarity keyword.Polarity
	Positive []string
	Negative []string
	Count    int
}

// Augment suggests new keywords for one polarity. Words already present in
// that polarity are dropped from the suggestions.
func (c *Client) Augment(ctx context.Context, input AugmentInput) ([]keyword.Record, error) {
	if !c.Configured() {
		return nil, notConfigured()
	}
	if !input.Polarity.Valid() {
		return nil, errors.NewInvalidRequest("polarity must be one of: positive, negative")
	}
	if input.Count <= 0 {
		return []keyword.Record{}, nil
	}

	payload, err := json.Marshal(map[string]any{
		"topic":    input.Topic,
		"polarity": input.Polarity,
		"positive": nonNil(input.Positive),
		"negative": nonNil(input.Negative),
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	var out augmentResponse
	params := c.jsonParams(fmt.Sprintf(augmentPrompt, input.Count, input.Polarity), string(payload), "Suggestions", "New keywords", augmentSchema)
	if err := c.call(ctx, "augment", params, &out); err != nil {
		return nil, err
	}

	existing := input.Positive
	if input.Polarity == keyword.Negative {
		existing = input.Negative
	}
	recs := toRecords(input.Polarity, out.Keywords, existing)
	if len(recs) > input.Count {
		recs = recs[:input.Count]
	}
	return recs, nil
}

// Generate returns the text the composed draft asks for.
func (c *Client) Generate(ctx context.Context, composed string) (string, error) {
	if !c.Configured() {
		return "", notConfigured()
	}
	if strings.TrimSpace(composed) == "" {
		return "", errors.NewInvalidRequest("draft is empty")
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(2000),
		Instructions:    openai.String(generatePrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(composed, responses.EasyInputMessageRoleUser),
			},
		},
	}
	text, err := c.complete(ctx, params)
	if err != nil {
		c.log.Warn("generate failed", "error", err)
		return "", errors.NewInternal(fmt.Errorf("generate: %w", err))
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) jsonParams(instructions, input, name, description string, schema map[string]any) responses.ResponseNewParams {
	return responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(1200),
		Instructions:    openai.String(instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        name,
					Schema:      schema,
					Strict:      openai.Bool(true),
					Description: openai.String(description),
					Type:        "json_schema",
				},
			},
		},
	}
}

// call runs a structured request, retrying once when the output is not valid JSON.
func (c *Client) call(ctx context.Context, op string, params responses.ResponseNewParams, out any) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := c.complete(ctx, params)
		if err != nil {
			c.log.Warn("assistant call failed", "op", op, "error", err)
			return errors.NewInternal(fmt.Errorf("%s: %w", op, err))
		}
		if lastErr = decodeModelJSON(text, out); lastErr == nil {
			return nil
		}
		c.log.Debug("assistant returned invalid JSON", "op", op, "attempt", attempt, "error", lastErr)
	}
	return errors.NewInternal(fmt.Errorf("%s: decode model output: %w", op, lastErr))
}

// toRecords turns suggestions into model-sourced records, dropping blanks,
// repeats and anything already in exclude.
func toRecords(p keyword.Polarity, in []suggestion, exclude []string) []keyword.Record {
	seen := make(map[string]bool, len(in)+len(exclude))
	for _, w := range exclude {
		seen[keyword.DedupeKey(p, w)] = true
	}
	out := make([]keyword.Record, 0, len(in))
	for _, s := range in {
		word := strings.TrimSpace(s.Word)
		key := keyword.DedupeKey(p, word)
		if word == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, keyword.Record{Word: word, Weight: keyword.ClampWeight(s.Weight), Source: keyword.SourceModel})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
