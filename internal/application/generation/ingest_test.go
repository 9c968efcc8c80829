package generation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-orchestrator/internal/domain/entity"
	apperrors "novel-orchestrator/pkg/errors"
)

func TestUpload_ContentIsChunkedAndIndexed(t *testing.T) {
	h := newHarness()
	o := h.build()

	content := strings.Repeat("The tide came in. ", 120)
	res, err := o.Upload(context.Background(), &entity.UploadRequest{NovelID: "n1", Content: content, ChunkSize: 500, Overlap: 50})
	require.NoError(t, err)

	assert.Equal(t, entity.UploadModeContent, res.Mode)
	assert.Greater(t, res.Chunks, 1)
	assert.Equal(t, res.Chunks, res.Indexed)
	assert.NotEmpty(t, res.DocumentID)
	assert.Equal(t, res.DocumentID, h.indexer.last.DocumentID)

	again, err := o.Upload(context.Background(), &entity.UploadRequest{NovelID: "n1", Content: content, ChunkSize: 500, Overlap: 50})
	require.NoError(t, err)
	assert.Equal(t, res.DocumentID, again.DocumentID)
}

func TestUpload_ChunksPassThrough(t *testing.T) {
	h := newHarness()
	o := h.build()

	res, err := o.Upload(context.Background(), &entity.UploadRequest{
		NovelID: "n1",
		Chunks:  []entity.DocumentChunk{{Content: "one"}, {Content: "two"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, []string{"one", "two"}, h.indexer.last.Chunks)
}

func TestUpload_FileURLFetched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc.md":
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			_, _ = w.Write([]byte("# Lore\n\nThe city sleeps under the sea."))
		case "/blob":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	h := newHarness()
	o := h.build()

	res, err := o.Upload(context.Background(), &entity.UploadRequest{NovelID: "n1", FileURL: srv.URL + "/doc.md"})
	require.NoError(t, err)
	assert.Equal(t, entity.UploadModeFileURL, res.Mode)
	assert.Equal(t, 1, res.Chunks)

	_, err = o.Upload(context.Background(), &entity.UploadRequest{NovelID: "n1", FileURL: srv.URL + "/blob"})
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.AsAppError(err).Code)

	_, err = o.Upload(context.Background(), &entity.UploadRequest{NovelID: "n1", FileURL: srv.URL + "/missing.txt"})
	assert.Equal(t, apperrors.CodeIngestionFailed, apperrors.AsAppError(err).Code)
}

func TestUpload_FetchLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer srv.Close()

	h := newHarness()
	h.cfg.Upload.MaxFetchBytes = 32
	o := h.build()

	_, err := o.Upload(context.Background(), &entity.UploadRequest{NovelID: "n1", FileURL: srv.URL + "/big.txt"})
	assert.Equal(t, apperrors.CodePayloadTooLarge, apperrors.AsAppError(err).Code)
}

func TestUpload_VectorDisabledAndIndexFailure(t *testing.T) {
	h := newHarness()
	h.indexer.enabled = false
	o := h.build()
	_, err := o.Upload(context.Background(), &entity.UploadRequest{NovelID: "n1", Content: "text"})
	assert.Equal(t, apperrors.CodeServiceUnavailable, apperrors.AsAppError(err).Code)
	assert.Zero(t, h.indexer.calls.Load())

	h = newHarness()
	h.indexer.err = errBoom
	o = h.build()
	req := &entity.UploadRequest{NovelID: "n1", Content: "text", CallbackURL: "https://example.com/cb"}
	_, err = o.Upload(context.Background(), req)
	assert.ErrorIs(t, err, errBoom)
	sent := h.notifier.sent()
	require.Len(t, sent, 1)
	assert.False(t, sent[0].Success)
}

func TestUpload_DelegatedWhenConfigured(t *testing.T) {
	h := newHarness()
	h.cfg.Generation.Mode = ModeDelegate
	h.delegator.generationURL = true
	h.delegator.uploadURL = true
	o := h.build()

	res, err := o.Upload(context.Background(), &entity.UploadRequest{NovelID: "n1", Content: "text"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(res.Delegated))
	assert.Zero(t, h.indexer.calls.Load())
}
