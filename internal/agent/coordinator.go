package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	apperrors "github.com/openpapers/papersync/internal/errors"
	"github.com/openpapers/papersync/internal/metadata"
	"github.com/openpapers/papersync/internal/remote"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"
)

// resultChanSize buffers finished tasks back to the engine loop.
const resultChanSize = 64

// API is the subset of the document store client the coordinator needs.
// Extracted for testability.
type API interface {
	CreateFile(ctx context.Context, token, path, batchID string, content []byte, meta *remote.FileMetadata, thumbnail []byte) error
	MoveFile(ctx context.Context, token, from, to string) error
	RenameFile(ctx context.Context, token, from, to string) error
	DeleteFile(ctx context.Context, token, path string) error
	CreateFolder(ctx context.Context, token, path, batchID string) error
	MoveFolder(ctx context.Context, token, from, to string) error
	DeleteFolder(ctx context.Context, token, path string) error
}

// Extractor produces upload metadata for a document's bytes.
type Extractor interface {
	Extract(ctx context.Context, path string, data []byte) (*metadata.Document, error)
}

// Coordinator turns tasks into remote API calls with bounded retries.
// Transient failures (network, timeout, 429/5xx) retry up to maxRetries
// with a fixed delay; permanent rejections and exhausted retries produce
// one terminal Result and no further attempts.
type Coordinator struct {
	api        API
	token      string
	extractor  Extractor
	maxRetries int
	retryDelay time.Duration
	sem        *semaphore.Weighted
	results    chan Result
	logger     *slog.Logger

	// readFile is os.ReadFile, swapped out in tests.
	readFile func(string) ([]byte, error)
}

// NewCoordinator creates a coordinator. extractor may be nil, which
// uploads creates without enrichment. concurrency bounds simultaneous
// uploads across distinct paths.
func NewCoordinator(api API, token string, extractor Extractor, maxRetries int, retryDelay time.Duration, concurrency int, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		api:        api,
		token:      token,
		extractor:  extractor,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		sem:        semaphore.NewWeighted(int64(concurrency)),
		results:    make(chan Result, resultChanSize),
		logger:     logger,
		readFile:   os.ReadFile,
	}
}

// Results returns the channel carrying finished tasks.
func (c *Coordinator) Results() <-chan Result {
	return c.results
}

// Dispatch runs a task asynchronously. The engine guarantees at most one
// in-flight task per path before calling this.
func (c *Coordinator) Dispatch(ctx context.Context, task Task) {
	go func() {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			c.deliver(ctx, Result{Task: task, Err: err})
			return
		}
		defer c.sem.Release(1)

		attempts := 0

		backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewConstant(c.retryDelay))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			attempts++

			err := c.execute(ctx, task)
			if err != nil && remote.IsTransient(err) {
				c.logger.Debug("transient failure, will retry",
					slog.String("path", task.Path),
					slog.String("op", task.Op.String()),
					slog.Int("attempt", attempts),
					slog.String("error", err.Error()),
				)

				return retry.RetryableError(err)
			}

			return err
		})
		if err != nil && remote.IsTransient(err) {
			err = fmt.Errorf("%w after %d attempts: %w", apperrors.ErrRetriesExhausted, attempts, err)
		}

		c.deliver(ctx, Result{Task: task, Attempts: attempts, Err: err})
	}()
}

func (c *Coordinator) deliver(ctx context.Context, res Result) {
	select {
	case c.results <- res:
	case <-ctx.Done():
	}
}

func (c *Coordinator) execute(ctx context.Context, task Task) error {
	switch task.Op {
	case OpCreate:
		return c.executeCreate(ctx, task)
	case OpMove:
		return c.api.MoveFile(ctx, c.token, task.Path, task.Dest)
	case OpRename:
		return c.api.RenameFile(ctx, c.token, task.Path, task.Dest)
	case OpDelete:
		return c.api.DeleteFile(ctx, c.token, task.Path)
	case OpCreateFolder:
		return c.api.CreateFolder(ctx, c.token, task.Path, task.BatchID)
	case OpMoveFolder:
		return c.api.MoveFolder(ctx, c.token, task.Path, task.Dest)
	case OpDeleteFolder:
		return c.api.DeleteFolder(ctx, c.token, task.Path)
	default:
		return fmt.Errorf("unknown task op %d", task.Op)
	}
}

// executeCreate reads the file and uploads it with extracted metadata.
// Extraction failure is non-fatal: the upload proceeds with whatever
// partial metadata was produced.
func (c *Coordinator) executeCreate(ctx context.Context, task Task) error {
	content, err := c.readFile(task.AbsPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", task.Path, err)
	}

	var (
		meta  *remote.FileMetadata
		thumb []byte
	)

	if c.extractor != nil {
		doc, err := c.extractor.Extract(ctx, task.Path, content)
		if err != nil {
			c.logger.Warn("metadata extraction failed, uploading without enrichment",
				slog.String("path", task.Path),
				slog.String("error", err.Error()),
			)
		} else {
			meta = metadataPayload(doc)
			thumb = doc.Thumbnail
		}
	}

	return c.api.CreateFile(ctx, c.token, task.Path, task.BatchID, content, meta, thumb)
}

func metadataPayload(doc *metadata.Document) *remote.FileMetadata {
	tags := make([]remote.TagSuggestion, 0, len(doc.Tags))
	for _, t := range doc.Tags {
		tags = append(tags, remote.TagSuggestion{Tag: t.Tag, Confidence: t.Confidence})
	}

	return &remote.FileMetadata{
		ExtractedText: doc.Text,
		WordCount:     doc.WordCount,
		Keywords:      doc.Keywords,
		Tags:          tags,
		OCR:           doc.OCR,
	}
}
