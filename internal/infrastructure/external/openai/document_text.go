package openai

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"
	"github.com/shopspring/decimal"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
)

const (
	maxPages       = 3
	maxPromptChars = 3000
	maxParsedItems = 10
)

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// documentText returns the text layer of a PDF or plain-text upload.
// Images have no text layer and yield "".
func documentText(content []byte, contentType string) (string, error) {
	switch {
	case strings.Contains(contentType, "pdf"):
		doc, err := fitz.NewFromMemory(content)
		if err != nil {
			return "", fmt.Errorf("failed to open PDF: %w", err)
		}
		defer doc.Close()

		var sb strings.Builder
		for page := 0; page < doc.NumPage() && page < maxPages; page++ {
			text, err := doc.Text(page)
			if err != nil {
				return "", fmt.Errorf("failed to read page %d: %w", page, err)
			}
			sb.WriteString(text)
			sb.WriteString("\n")
		}
		return sb.String(), nil
	case strings.HasPrefix(contentType, "text/"):
		return string(content), nil
	}
	return "", nil
}

var (
	sellerPattern = regexp.MustCompile(`(?i)(?:seller|store|vendor|from):[ \t]*([A-Z][A-Za-z &]+)`)
	totalPattern  = regexp.MustCompile(`(?i)(?:total|amount|sum):\s*\$?(\d+[.,]?\d*)`)
	itemPattern   = regexp.MustCompile(`(?i)(\d+)\s*x?\s*([A-Za-z\s]+?)\s*(?:@|at)?\s*\$?(\d+[.,]?\d*)`)
)

// parseReceiptText pulls seller, items and total out of free text with patterns
func parseReceiptText(text string) *port.ExtractedReceipt {
	result := &port.ExtractedReceipt{TotalAmount: decimal.Zero}

	if m := sellerPattern.FindStringSubmatch(text); m != nil {
		result.Seller = strings.TrimSpace(m[1])
	}

	if totals := totalPattern.FindAllStringSubmatch(text, -1); len(totals) > 0 {
		if amount, err := decimal.NewFromString(strings.ReplaceAll(totals[len(totals)-1][1], ",", "")); err == nil {
			result.TotalAmount = amount
		}
	}

	// total lines would otherwise read as "<n> items"
	body := totalPattern.ReplaceAllString(text, "")
	for _, m := range itemPattern.FindAllStringSubmatch(body, maxParsedItems) {
		quantity, err := strconv.Atoi(m[1])
		if err != nil || quantity < 1 {
			continue
		}
		price, err := decimal.NewFromString(strings.ReplaceAll(m[3], ",", ""))
		if err != nil {
			continue
		}
		description := strings.Join(strings.Fields(m[2]), " ")
		if description == "" {
			continue
		}
		result.Items = append(result.Items, entity.LineItem{
			Description: description,
			Quantity:    quantity,
			UnitPrice:   price,
		})
	}

	return result
}

// extractJSON returns the first balanced JSON object in content
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	end := findJSONEnd(content, start)
	if end <= start {
		return ""
	}
	return content[start:end]
}

// findJSONEnd finds the end of JSON content starting at a given position
func findJSONEnd(content string, start int) int {
	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(content); i++ {
		char := content[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				return i + 1
			}
		}
	}

	return -1
}
