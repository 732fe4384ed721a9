package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discubot/backend/internal/pipeline"
	"discubot/backend/pkg/models"
)

func testDiscussion() *models.ParsedDiscussion {
	return &models.ParsedDiscussion{
		TeamID:         "team-1",
		SourceType:     models.SourceTypeSlack,
		SourceThreadID: "C1:1.2",
		Title:          "Launch checklist",
		Root:           models.Message{ID: "1.2", AuthorID: "U1", Content: "Who owns the launch checklist?"},
	}
}

func TestSummarizeAndExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/extract", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var d models.ParsedDiscussion
		require.NoError(t, json.NewDecoder(r.Body).Decode(&d))
		assert.Equal(t, "C1:1.2", d.SourceThreadID)

		json.NewEncoder(w).Encode(extractResponse{
			Summary: models.AISummary{Summary: "Launch ownership unclear.", Confidence: 0.92},
			Tasks:   []models.DetectedTask{{Title: "Assign launch owner", Priority: "high"}},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	summary, tasks, err := c.SummarizeAndExtract(context.Background(), testDiscussion())
	require.NoError(t, err)

	assert.Equal(t, "Launch ownership unclear.", summary.Summary)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Assign launch owner", tasks[0].Title)
}

func TestSummarizeAndExtract_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, _, err := c.SummarizeAndExtract(context.Background(), testDiscussion())
	require.Error(t, err)
	assert.Equal(t, pipeline.KindTransient, pipeline.KindOf(err))
}

func TestSummarizeAndExtract_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, _, err := c.SummarizeAndExtract(context.Background(), testDiscussion())
	require.Error(t, err)
	assert.Equal(t, pipeline.KindPermanent, pipeline.KindOf(err))
}
