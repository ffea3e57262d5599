package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptSpec is one prompt and its model parameters
type PromptSpec struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`
}

// PromptConfig holds the prompts used by the receipt extractor
type PromptConfig struct {
	ReceiptExtraction PromptSpec `yaml:"receipt_extraction"`
}

// DefaultPrompts returns the built-in prompts
func DefaultPrompts() *PromptConfig {
	return &PromptConfig{
		ReceiptExtraction: PromptSpec{
			Temperature: 0.1,
			MaxTokens:   1024,
			System:      "You are a data extraction assistant. Return only valid JSON.",
			UserTemplate: `Extract structured data from this receipt:
{{.Text}}

Return JSON with: seller (store/vendor name), items (array of {"description": string, "quantity": integer, "unit_price": number}), total_amount (number).
Use numbers without currency symbols. Do not guess values that are not on the receipt.`,
		},
	}
}

// LoadPrompts reads prompt overrides from a YAML file. Fields left empty
// keep their defaults.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	prompts := DefaultPrompts()
	if promptsPath == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var override PromptConfig
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	merge(&prompts.ReceiptExtraction, override.ReceiptExtraction)
	return prompts, nil
}

func merge(dst *PromptSpec, src PromptSpec) {
	if src.Temperature != 0 {
		dst.Temperature = src.Temperature
	}
	if src.MaxTokens != 0 {
		dst.MaxTokens = src.MaxTokens
	}
	if src.System != "" {
		dst.System = src.System
	}
	if src.UserTemplate != "" {
		dst.UserTemplate = src.UserTemplate
	}
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
