package corpus

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
)

const uploadPrefix = "rag_uploads/"

// UploadInput is a file received from a client
type UploadInput struct {
	CorpusName  string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadDocument stores a file in the configured bucket and imports it into
// the corpus. Rejected files fail with a model.TagValidation error before any
// bytes are written.
func (uc *UseCase) UploadDocument(ctx context.Context, sessionID model.SessionID, input UploadInput) (model.Result, error) {
	filename := filepath.Base(strings.ReplaceAll(input.Filename, "\\", "/"))
	if filename == "" || filename == "." || filename == "/" {
		return nil, goerr.New("Filename is required", goerr.T(model.TagValidation))
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !slices.Contains(uc.cfg.AllowedExtensions, ext) {
		return nil, goerr.New(
			fmt.Sprintf("File type .%s not allowed. Allowed: %s", ext, strings.Join(uc.cfg.AllowedExtensions, ", ")),
			goerr.T(model.TagValidation), goerr.V("filename", filename))
	}

	limit := uc.cfg.MaxUploadMB * 1024 * 1024
	if input.Size > limit {
		return nil, goerr.New(
			fmt.Sprintf("File size %.2fMB exceeds %dMB limit.", float64(input.Size)/1024/1024, uc.cfg.MaxUploadMB),
			goerr.T(model.TagValidation), goerr.V("size", input.Size))
	}

	if uc.storage == nil || uc.storage.Bucket() == "" {
		return nil, goerr.New("GCS_BUCKET_NAME environment variable not set.", goerr.T(model.TagValidation))
	}

	if input.CorpusName == "" {
		return nil, goerr.New("Corpus name is required", goerr.T(model.TagValidation))
	}

	blob := uploadPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + filename

	// Size may be unknown or understated by the client
	body := io.LimitReader(input.Body, limit+1)
	counter := &countingReader{r: body}

	fileURL, err := uc.storage.Put(ctx, blob, input.ContentType, counter)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upload file", goerr.V("blob", blob))
	}
	if counter.n > limit {
		if err := uc.storage.Delete(ctx, blob); err != nil {
			logging.From(ctx).Warn("failed to remove oversized upload", "blob", blob, "error", err)
		}
		return nil, goerr.New(
			fmt.Sprintf("File size exceeds %dMB limit.", uc.cfg.MaxUploadMB),
			goerr.T(model.TagValidation), goerr.V("blob", blob))
	}

	logging.From(ctx).Info("file uploaded", "blob", blob, "bytes", counter.n, "corpus_name", input.CorpusName)

	added, err := uc.AddData(ctx, sessionID, input.CorpusName, []string{fileURL})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to add uploaded file", goerr.V("file_url", fileURL))
	}

	return model.Result{
		"status":          string(model.StatusSuccess),
		"message":         fmt.Sprintf("Uploaded %s", filename),
		"file_url":        fileURL,
		"blob_name":       blob,
		"add_data_result": added,
	}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
