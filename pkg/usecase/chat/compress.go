package chat

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/adapter"
	"google.golang.org/genai"
)

const (
	compressionRatio = 0.7 // Compress first 70% by byte size
)

//go:embed prompt/summarize.md
var summarizePromptRaw string

// isTokenLimitError checks if the error is due to token limit exceeded
func isTokenLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	// Example: "The input token count (2500030) exceeds the maximum number of tokens allowed (1048576)."
	return apiErr.Code == 400 &&
		apiErr.Status == "INVALID_ARGUMENT" &&
		strings.HasPrefix(apiErr.Message, "The input token count (") &&
		strings.Contains(apiErr.Message, ") exceeds the maximum number of tokens allowed (")
}

// contentSize calculates the byte size of a content by JSON marshaling
func contentSize(content *genai.Content) int {
	data, err := json.Marshal(content)
	if err != nil {
		return 0
	}
	return len(data)
}

// compressHistory replaces the oldest 70% of the history by byte size with a
// summary. The kept part always starts at a user message so function calls
// stay paired with their responses.
func compressHistory(ctx context.Context, gemini adapter.Gemini, modelName string, contents []*genai.Content) ([]*genai.Content, error) {
	if len(contents) == 0 {
		return nil, goerr.New("history is empty")
	}

	totalBytes := 0
	byteSizes := make([]int, len(contents))
	for i, content := range contents {
		size := contentSize(content)
		byteSizes[i] = size
		totalBytes += size
	}

	compressThreshold := int(float64(totalBytes) * compressionRatio)

	cumulativeBytes := 0
	compressIndex := 0
	for i, size := range byteSizes {
		cumulativeBytes += size
		if cumulativeBytes >= compressThreshold {
			compressIndex = i + 1
			break
		}
	}

	for compressIndex > 0 && compressIndex < len(contents) && !startsUserTurn(contents[compressIndex]) {
		compressIndex--
	}

	if compressIndex == 0 || compressIndex >= len(contents) {
		return nil, goerr.New("insufficient content to compress")
	}

	toCompress := contents[:compressIndex]
	toKeep := contents[compressIndex:]

	summary, err := summarizeContents(ctx, gemini, modelName, toCompress)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to summarize contents")
	}

	summaryContent := &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{Text: "=== Previous Conversation Summary ===\n\n" + summary},
		},
	}
	ack := genai.NewContentFromText("Understood.", genai.RoleModel)

	newContents := append([]*genai.Content{summaryContent, ack}, toKeep...)
	return newContents, nil
}

// startsUserTurn reports whether c is a user message rather than a batch of
// function responses
func startsUserTurn(c *genai.Content) bool {
	if c == nil || c.Role != genai.RoleUser {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse != nil {
			return false
		}
	}
	return true
}

// summarizeContents generates a summary of the given conversation contents
func summarizeContents(ctx context.Context, gemini adapter.Gemini, modelName string, contents []*genai.Content) (string, error) {
	contentsWithPrompt := append(append([]*genai.Content{}, contents...), genai.NewContentFromText(summarizePromptRaw, genai.RoleUser))

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText("You are an assistant that answers questions from document corpora.", ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	resp, err := gemini.GenerateContent(ctx, modelName, contentsWithPrompt, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate summary")
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", goerr.New("no summary generated")
	}

	var summary strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			summary.WriteString(part.Text)
		}
	}

	if summary.Len() == 0 {
		return "", goerr.New("empty summary generated")
	}

	return summary.String(), nil
}
