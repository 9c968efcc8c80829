package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/domain/entity"
	apperrors "novel-orchestrator/pkg/errors"
)

func TestValidateGeneration(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(r *entity.GenerationRequest)
		ok     bool
	}{
		{"valid", func(r *entity.GenerationRequest) {}, true},
		{"trimmed novel id too short", func(r *entity.GenerationRequest) { r.NovelID = "  ab  " }, false},
		{"zero chapter", func(r *entity.GenerationRequest) { r.ChapterNumber = 0 }, false},
		{"negative chapter", func(r *entity.GenerationRequest) { r.ChapterNumber = -2 }, false},
		{"blank focus", func(r *entity.GenerationRequest) { r.FocusElements = "  " }, false},
		{"missing style", func(r *entity.GenerationRequest) { r.StylePreference = "" }, false},
		{"missing mood", func(r *entity.GenerationRequest) { r.Mood = "" }, false},
		{"missing callback", func(r *entity.GenerationRequest) { r.CallbackURL = "" }, false},
		{"non http callback", func(r *entity.GenerationRequest) { r.CallbackURL = "ftp://example.com/cb" }, false},
		{"relative callback", func(r *entity.GenerationRequest) { r.CallbackURL = "/cb" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRequest()
			tc.mutate(r)
			err := ValidateGeneration(r)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeValidationFailed, apperrors.AsAppError(err).Code)
		})
	}
}

func TestValidateUpload(t *testing.T) {
	limits := config.UploadConfig{MaxChunks: 2, MaxChunkSize: 10, DefaultChunkSize: 8, DefaultOverlap: 2, MaxContentBytes: 20}

	r := &entity.UploadRequest{NovelID: " n1 ", Content: "hello"}
	require.NoError(t, ValidateUpload(r, limits))
	assert.Equal(t, "n1", r.NovelID)
	assert.Equal(t, entity.ChunkingParagraph, r.ChunkingStrategy)
	assert.Equal(t, 8, r.ChunkSize)
	assert.Equal(t, 2, r.Overlap)

	assert.Error(t, ValidateUpload(&entity.UploadRequest{NovelID: "n1"}, limits))
	assert.Error(t, ValidateUpload(&entity.UploadRequest{Content: "x"}, limits))
	assert.Error(t, ValidateUpload(&entity.UploadRequest{NovelID: "n1", Content: "x", ChunkSize: 5, Overlap: 5}, limits))
	assert.Error(t, ValidateUpload(&entity.UploadRequest{NovelID: "n1", Content: "x", ChunkingStrategy: "words"}, limits))
	assert.Error(t, ValidateUpload(&entity.UploadRequest{NovelID: "n1", FileURL: "file:///etc/passwd"}, limits))
	assert.Error(t, ValidateUpload(&entity.UploadRequest{NovelID: "n1", Chunks: []entity.DocumentChunk{{Content: "a"}, {Content: "b"}, {Content: "c"}}}, limits))
	assert.Error(t, ValidateUpload(&entity.UploadRequest{NovelID: "n1", Chunks: []entity.DocumentChunk{{Content: "this chunk is too long"}}}, limits))

	err := ValidateUpload(&entity.UploadRequest{NovelID: "n1", Content: "this content is over twenty bytes"}, limits)
	assert.Equal(t, apperrors.CodePayloadTooLarge, apperrors.AsAppError(err).Code)

	assert.NoError(t, ValidateUpload(&entity.UploadRequest{NovelID: "n1", FileURL: "https://example.com/a.md"}, limits))
}

func TestSplitFocus(t *testing.T) {
	assert.Equal(t, []string{"intro", "the lighthouse", "storm"}, SplitFocus("intro, the lighthouse\nstorm,"))
	assert.Equal(t, []string{}, SplitFocus("  "))
}
