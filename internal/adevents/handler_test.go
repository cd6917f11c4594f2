package adevents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	tags []string
	err  error
}

func (f *fakeSource) DistinctAdTags(ctx context.Context) ([]string, error) { return f.tags, f.err }

type fakeCache struct{ warmed [][]string }

func (f *fakeCache) Warm(ctx context.Context, tags []string) { f.warmed = append(f.warmed, tags) }

func TestHandle_WarmsCache(t *testing.T) {
	cache := &fakeCache{}
	h := NewHandler(&fakeSource{tags: []string{"a", "b"}}, cache, nil)

	err := h.Handle(context.Background(), []byte(`{"type":"ad.tags_updated","ad_archive_id":"1","tags":["a"]}`))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, cache.warmed)
}

func TestHandle_BadMessages(t *testing.T) {
	h := NewHandler(&fakeSource{}, &fakeCache{}, nil)
	for _, body := range []string{
		`not json`,
		`{"type":"ad.saved"}`,
		`{"type":"ad.renamed","ad_archive_id":"1"}`,
	} {
		err := h.Handle(context.Background(), []byte(body))
		assert.ErrorIs(t, err, ErrBadMessage, body)
	}
}

func TestHandle_SourceFailureIsRetryable(t *testing.T) {
	cache := &fakeCache{}
	h := NewHandler(&fakeSource{err: errors.New("db down")}, cache, nil)

	err := h.Handle(context.Background(), []byte(`{"type":"ad.deleted","ad_archive_id":"1"}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBadMessage)
	assert.Empty(t, cache.warmed)
}
