package corpus

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/m-mizutani/imoye/pkg/adapter"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
)

var drivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://drive\.google\.com/file/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`^https://docs\.google\.com/[a-z]+/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`^https://drive\.google\.com/open\?id=([a-zA-Z0-9_-]+)`),
}

// importSources splits paths into Cloud Storage URIs and Drive file IDs.
// Anything else is returned in invalid.
type importSources struct {
	gcs         []string
	drive       []string
	accepted    []string
	invalid     []string
	conversions []map[string]string
}

func classifyPaths(paths []string) *importSources {
	src := &importSources{}

	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if strings.HasPrefix(p, "gs://") && len(p) > len("gs://") {
			src.gcs = append(src.gcs, p)
			src.accepted = append(src.accepted, p)
			continue
		}

		if id := driveFileID(p); id != "" {
			normalized := fmt.Sprintf("https://drive.google.com/file/d/%s/view", id)
			src.drive = append(src.drive, id)
			src.accepted = append(src.accepted, normalized)
			if normalized != p {
				src.conversions = append(src.conversions, map[string]string{
					"original":  p,
					"converted": normalized,
				})
			}
			continue
		}

		src.invalid = append(src.invalid, fmt.Sprintf("%s (Not a valid Drive URL or GCS path)", p))
	}

	return src
}

func driveFileID(path string) string {
	for _, re := range drivePatterns {
		if m := re.FindStringSubmatch(path); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

// AddData imports Cloud Storage objects or Google Drive files into a corpus
// and makes it current
func (uc *UseCase) AddData(ctx context.Context, sessionID model.SessionID, name string, paths []string) (model.Result, error) {
	if len(paths) == 0 {
		return model.ErrorResult("Invalid paths: Please provide a list of file paths", map[string]any{
			"corpus_name": name,
			"files_added": 0,
		}), nil
	}

	resource, ok, err := uc.resolve(ctx, sessionID, name)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("Error adding data to corpus: %s", err.Error()), map[string]any{
			"corpus_name": name,
			"paths":       paths,
		}), nil
	}
	if !ok {
		return model.ErrorResult(notExistsCreateFirst(name), map[string]any{
			"corpus_name": name,
			"paths":       paths,
		}), nil
	}

	src := classifyPaths(paths)
	if len(src.accepted) == 0 {
		return model.ErrorResult("No valid paths provided. Please provide Google Drive URLs or GCS paths.", map[string]any{
			"corpus_name":   name,
			"invalid_paths": src.invalid,
		}), nil
	}

	logger := logging.From(ctx)
	logger.Info("importing files", "corpus_name", name, "gcs", len(src.gcs), "drive", len(src.drive))

	imported, err := uc.rag.ImportFiles(ctx, resource, adapter.ImportFilesInput{
		GCSURIs:                    src.gcs,
		DriveFileIDs:               src.drive,
		ChunkSize:                  uc.cfg.ChunkSize,
		ChunkOverlap:               uc.cfg.ChunkOverlap,
		MaxEmbeddingRequestsPerMin: uc.cfg.MaxEmbeddingRequestsPerMin,
	})
	if err != nil {
		logger.Error("failed to import files", "corpus_name", name, "error", err)
		return model.ErrorResult(fmt.Sprintf("Error adding data to corpus: %s", err.Error()), map[string]any{
			"corpus_name": name,
			"paths":       paths,
		}), nil
	}

	uc.setCurrent(ctx, sessionID, resource)

	message := fmt.Sprintf("Successfully added %d file(s) to corpus '%s'", imported.Imported, name)
	if len(src.conversions) > 0 {
		message += " (converted Google Docs URLs to Drive format)"
	}

	invalid := src.invalid
	if invalid == nil {
		invalid = []string{}
	}

	return model.NewResult(model.StatusSuccess, message, map[string]any{
		"corpus_name":   name,
		"files_added":   imported.Imported,
		"files_failed":  imported.Failed,
		"paths":         src.accepted,
		"invalid_paths": invalid,
		"conversions":   src.conversions,
	}), nil
}
