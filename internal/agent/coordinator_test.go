package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	apperrors "github.com/openpapers/papersync/internal/errors"
	"github.com/openpapers/papersync/internal/metadata"
	"github.com/openpapers/papersync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCoordinator(t *testing.T, api API, extractor Extractor) *Coordinator {
	t.Helper()
	return NewCoordinator(api, "tok", extractor, 3, time.Millisecond, 4, testLogger())
}

func waitResult(t *testing.T, c *Coordinator) Result {
	t.Helper()

	select {
	case res := <-c.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task result")
		return Result{}
	}
}

// fakeExtractor returns a canned document or error.
type fakeExtractor struct {
	doc *metadata.Document
	err error
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, _ []byte) (*metadata.Document, error) {
	return f.doc, f.err
}

// --- Dispatch ---

func TestDispatch_MoveSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)
	api.EXPECT().MoveFile(gomock.Any(), "tok", "inbox/a.pdf", "taxes/a.pdf").Return(nil)

	c := testCoordinator(t, api, nil)
	c.Dispatch(context.Background(), Task{ID: "t1", Op: OpMove, Path: "inbox/a.pdf", Dest: "taxes/a.pdf"})

	res := waitResult(t, c)
	require.NoError(t, res.Err)
	assert.Equal(t, "t1", res.Task.ID)
	assert.Equal(t, 1, res.Attempts)
}

func TestDispatch_TransientRetriesThenSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)

	transient := &remote.TransientError{Err: errors.New("connection reset")}
	gomock.InOrder(
		api.EXPECT().DeleteFile(gomock.Any(), "tok", "a.pdf").Return(transient),
		api.EXPECT().DeleteFile(gomock.Any(), "tok", "a.pdf").Return(transient),
		api.EXPECT().DeleteFile(gomock.Any(), "tok", "a.pdf").Return(nil),
	)

	c := testCoordinator(t, api, nil)
	c.Dispatch(context.Background(), Task{ID: "t1", Op: OpDelete, Path: "a.pdf"})

	res := waitResult(t, c)
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
}

func TestDispatch_TransientExhaustsRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)

	transient := &remote.TransientError{Err: errors.New("503")}
	// Initial attempt plus maxRetries.
	api.EXPECT().DeleteFile(gomock.Any(), "tok", "a.pdf").Return(transient).Times(4)

	c := testCoordinator(t, api, nil)
	c.Dispatch(context.Background(), Task{ID: "t1", Op: OpDelete, Path: "a.pdf"})

	res := waitResult(t, c)
	require.Error(t, res.Err)
	assert.Equal(t, 4, res.Attempts)
	assert.ErrorIs(t, res.Err, apperrors.ErrRetriesExhausted)
}

func TestDispatch_PermanentFailsImmediately(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)

	permanent := fmt.Errorf("path already exists")
	api.EXPECT().RenameFile(gomock.Any(), "tok", "a.pdf", "b.pdf").Return(permanent).Times(1)

	c := testCoordinator(t, api, nil)
	c.Dispatch(context.Background(), Task{ID: "t1", Op: OpRename, Path: "a.pdf", Dest: "b.pdf"})

	res := waitResult(t, c)
	require.Error(t, res.Err)
	assert.Equal(t, 1, res.Attempts)
	assert.NotErrorIs(t, res.Err, apperrors.ErrRetriesExhausted)
}

func TestDispatch_UnknownOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)

	c := testCoordinator(t, api, nil)
	c.Dispatch(context.Background(), Task{ID: "t1", Op: Op(99), Path: "a.pdf"})

	res := waitResult(t, c)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "unknown task op")
}

// --- Create uploads ---

func TestDispatch_CreateUploadsContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)

	content := []byte("%PDF-1.7 lease")
	api.EXPECT().
		CreateFile(gomock.Any(), "tok", "contracts/lease.pdf", "batch-1", content, gomock.Nil(), gomock.Nil()).
		Return(nil)

	c := testCoordinator(t, api, nil)
	c.readFile = func(path string) ([]byte, error) {
		assert.Equal(t, "/abs/contracts/lease.pdf", path)
		return content, nil
	}

	c.Dispatch(context.Background(), Task{
		ID:      "t1",
		Op:      OpCreate,
		Path:    "contracts/lease.pdf",
		AbsPath: "/abs/contracts/lease.pdf",
		BatchID: "batch-1",
	})

	require.NoError(t, waitResult(t, c).Err)
}

func TestDispatch_CreateAttachesMetadata(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)

	doc := &metadata.Document{
		Text:      "lease agreement",
		WordCount: 2,
		Keywords:  []string{"lease", "agreement"},
		Tags:      []metadata.Suggestion{{Tag: "contract", Score: 4, Confidence: 0.5}},
		Thumbnail: []byte{0xFF, 0xD8},
	}

	api.EXPECT().
		CreateFile(gomock.Any(), "tok", "lease.pdf", "", gomock.Any(), gomock.Any(), []byte{0xFF, 0xD8}).
		DoAndReturn(func(_ context.Context, _, _, _ string, _ []byte, meta *remote.FileMetadata, _ []byte) error {
			require.NotNil(t, meta)
			assert.Equal(t, "lease agreement", meta.ExtractedText)
			assert.Equal(t, []string{"lease", "agreement"}, meta.Keywords)
			require.Len(t, meta.Tags, 1)
			assert.Equal(t, "contract", meta.Tags[0].Tag)
			assert.InDelta(t, 0.5, meta.Tags[0].Confidence, 1e-9)
			return nil
		})

	c := testCoordinator(t, api, &fakeExtractor{doc: doc})
	c.readFile = func(string) ([]byte, error) { return []byte("bytes"), nil }

	c.Dispatch(context.Background(), Task{ID: "t1", Op: OpCreate, Path: "lease.pdf", AbsPath: "/abs/lease.pdf"})

	require.NoError(t, waitResult(t, c).Err)
}

func TestDispatch_CreateDegradesOnExtractionFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)

	// The upload proceeds with no metadata when extraction fails.
	api.EXPECT().
		CreateFile(gomock.Any(), "tok", "lease.pdf", "", gomock.Any(), gomock.Nil(), gomock.Nil()).
		Return(nil)

	c := testCoordinator(t, api, &fakeExtractor{err: errors.New("corrupt xref table")})
	c.readFile = func(string) ([]byte, error) { return []byte("bytes"), nil }

	c.Dispatch(context.Background(), Task{ID: "t1", Op: OpCreate, Path: "lease.pdf", AbsPath: "/abs/lease.pdf"})

	require.NoError(t, waitResult(t, c).Err)
}

func TestDispatch_CreateFailsWhenFileUnreadable(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)

	c := testCoordinator(t, api, nil)
	c.readFile = func(string) ([]byte, error) { return nil, errors.New("permission denied") }

	c.Dispatch(context.Background(), Task{ID: "t1", Op: OpCreate, Path: "lease.pdf", AbsPath: "/abs/lease.pdf"})

	res := waitResult(t, c)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "permission denied")
}

// --- Folder operations ---

func TestDispatch_FolderOps(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockAPI(ctrl)
	api.EXPECT().CreateFolder(gomock.Any(), "tok", "scans", "batch-1").Return(nil)
	api.EXPECT().MoveFolder(gomock.Any(), "tok", "scans", "archive/scans").Return(nil)
	api.EXPECT().DeleteFolder(gomock.Any(), "tok", "archive/scans").Return(nil)

	c := testCoordinator(t, api, nil)

	c.Dispatch(context.Background(), Task{ID: "t1", Op: OpCreateFolder, Path: "scans", BatchID: "batch-1"})
	require.NoError(t, waitResult(t, c).Err)

	c.Dispatch(context.Background(), Task{ID: "t2", Op: OpMoveFolder, Path: "scans", Dest: "archive/scans"})
	require.NoError(t, waitResult(t, c).Err)

	c.Dispatch(context.Background(), Task{ID: "t3", Op: OpDeleteFolder, Path: "archive/scans"})
	require.NoError(t, waitResult(t, c).Err)
}
