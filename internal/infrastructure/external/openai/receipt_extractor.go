package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
)

// chatClient is the slice of the OpenAI client the extractor uses
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ExtractorConfig holds receipt extraction settings
type ExtractorConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ReceiptExtractor implements port.ReceiptExtractor. Documents with a text
// layer go to the chat model as text, images go as vision input. When the
// model is unavailable or answers badly the text is parsed with patterns.
type ReceiptExtractor struct {
	client  chatClient
	model   string
	timeout time.Duration
	prompts *PromptConfig
	logger  *zap.Logger
}

// NewReceiptExtractor creates an extractor. An empty API key disables the
// model and leaves only pattern parsing.
func NewReceiptExtractor(cfg ExtractorConfig, prompts *PromptConfig, logger *zap.Logger) *ReceiptExtractor {
	var client chatClient
	if cfg.APIKey != "" {
		client = openai.NewClient(cfg.APIKey)
	}
	return newReceiptExtractor(client, cfg, prompts, logger)
}

func newReceiptExtractor(client chatClient, cfg ExtractorConfig, prompts *PromptConfig, logger *zap.Logger) *ReceiptExtractor {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &ReceiptExtractor{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		prompts: prompts,
		logger:  logger,
	}
}

// modelReceipt is the JSON shape requested from the model
type modelReceipt struct {
	Seller string `json:"seller"`
	Items  []struct {
		Description string          `json:"description"`
		Quantity    int             `json:"quantity"`
		UnitPrice   decimal.Decimal `json:"unit_price"`
	} `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Extract reads seller, line items and total from a receipt document
func (e *ReceiptExtractor) Extract(ctx context.Context, content []byte, contentType string) (*port.ExtractedReceipt, error) {
	text, err := documentText(content, contentType)
	if err != nil {
		e.logger.Warn("Failed to read document text", zap.String("content_type", contentType), zap.Error(err))
	}
	isImage := strings.HasPrefix(contentType, "image/")

	if e.client != nil && (strings.TrimSpace(text) != "" || isImage) {
		result, err := e.extractWithModel(ctx, text, content, contentType, isImage)
		if err == nil && len(result.Items) > 0 {
			return result, nil
		}
		e.logger.Warn("Model extraction unusable, falling back to pattern parsing", zap.Error(err))
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no readable text in %s document", contentType)
	}

	result := parseReceiptText(text)
	e.logger.Info("Receipt parsed from text",
		zap.String("seller", result.Seller),
		zap.Int("items", len(result.Items)))
	return result, nil
}

func (e *ReceiptExtractor) extractWithModel(ctx context.Context, text string, content []byte, contentType string, isImage bool) (*port.ExtractedReceipt, error) {
	ps := e.prompts.ReceiptExtraction

	text = truncateUTF8(text, maxPromptChars)
	prompt, err := renderTemplate(ps.UserTemplate, map[string]string{"Text": text})
	if err != nil {
		return nil, err
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt}
	if isImage {
		user = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(content)),
						Detail: openai.ImageURLDetailHigh,
					},
				},
			},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: ps.Temperature,
		MaxTokens:   ps.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: ps.System},
			user,
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	raw := extractJSON(resp.Choices[0].Message.Content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var parsed modelReceipt
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	result := &port.ExtractedReceipt{
		Seller:      strings.TrimSpace(parsed.Seller),
		TotalAmount: parsed.TotalAmount,
	}
	for _, item := range parsed.Items {
		description := strings.TrimSpace(item.Description)
		if description == "" || item.Quantity < 1 || item.UnitPrice.IsNegative() {
			continue
		}
		result.Items = append(result.Items, entity.LineItem{
			Description: description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	e.logger.Info("Receipt extracted by model",
		zap.String("seller", result.Seller),
		zap.Int("items", len(result.Items)))
	return result, nil
}

var _ port.ReceiptExtractor = (*ReceiptExtractor)(nil)
