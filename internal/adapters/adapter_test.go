package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discubot/backend/internal/pipeline"
	"discubot/backend/pkg/models"
)

func TestRegistry(t *testing.T) {
	store := new(MockInputStore)
	logger := noopLogger{}
	r := NewRegistry(
		NewEmailAdapter(store, nil, logger),
		NewSlackAdapter(store, logger),
		NewNotionAdapter(store, new(MockCommentFetcher), logger),
	)

	for _, st := range []models.SourceType{
		models.SourceTypeEmailComment,
		models.SourceTypeSlack,
		models.SourceTypeNotion,
	} {
		a, err := r.Get(st)
		require.NoError(t, err)
		assert.Equal(t, st, a.SourceType())
	}

	_, err := r.Get(models.SourceType("carrier_pigeon"))
	require.Error(t, err)
	assert.Equal(t, pipeline.KindParse, pipeline.KindOf(err))
}
