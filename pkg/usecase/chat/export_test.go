package chat

import (
	"context"

	"github.com/m-mizutani/imoye/pkg/adapter"
	"google.golang.org/genai"
)

func CompressHistoryForTest(ctx context.Context, gemini adapter.Gemini, contents []*genai.Content) ([]*genai.Content, error) {
	return compressHistory(ctx, gemini, "test-model", contents)
}

func SummarizeContentsForTest(ctx context.Context, gemini adapter.Gemini, contents []*genai.Content) (string, error) {
	return summarizeContents(ctx, gemini, "test-model", contents)
}

func IsTokenLimitErrorForTest(err error) bool {
	return isTokenLimitError(err)
}

func (uc *UseCase) LockCountForTest() int {
	uc.locksMu.Lock()
	defer uc.locksMu.Unlock()
	return len(uc.locks)
}
