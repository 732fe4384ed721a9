package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"discubot/backend/internal/pipeline"
	"discubot/backend/internal/repository"
	"discubot/backend/internal/retry"
	"discubot/backend/pkg/models"
)

type noopLogger struct{}

func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Debug(msg string, args ...any) {}

// MockMappings satisfies MappingResolver
type MockMappings struct {
	mock.Mock
}

func (m *MockMappings) GetUserMapping(ctx context.Context, teamID string, sourceType models.SourceType, workspaceID, sourceUserID string) (*models.UserMapping, error) {
	args := m.Called(ctx, teamID, sourceType, workspaceID, sourceUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserMapping), args.Error(1)
}

func newTestClient(t *testing.T, url string, mappings MappingResolver) *Client {
	t.Helper()
	if mappings == nil {
		mappings = new(MockMappings)
	}
	c := NewClient("secret-token", "2022-06-28", mappings, noopLogger{})
	c.baseURL = url
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	fast := retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Timeout: time.Second}
	c.createPolicy = fast
	c.validatePolicy = retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Timeout: time.Second}
	return c
}

func sampleInput() CreateTaskInput {
	return CreateTaskInput{
		Task: &models.DetectedTask{
			Title:       "Fix login flow",
			Priority:    "high",
			ActionItems: []string{"Reproduce", "Patch"},
		},
		Summary: &models.AISummary{Summary: "Users cannot log in.", KeyPoints: []string{"Affects SSO"}, Confidence: 0.92},
		Discussion: &models.ParsedDiscussion{
			TeamID:         "team-1",
			SourceType:     models.SourceTypeSlack,
			SourceThreadID: "C1:1700000000.1",
			Root:           models.Message{ID: "1700000000.1", AuthorName: "Ana", Content: "login broken"},
			Participants:   []string{"ana", "bo"},
			Metadata:       map[string]string{models.MetaWorkspaceID: "T123"},
		},
		Output: &models.FlowOutput{DatabaseID: "db-1", IsDefault: true},
	}
}

func TestCreateTask(t *testing.T) {
	var got struct {
		Parent     map[string]any   `json:"parent"`
		Properties map[string]any   `json:"properties"`
		Children   []map[string]any `json:"children"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/pages", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2022-06-28", r.Header.Get("Notion-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"id": "page-1", "url": "https://notion.so/page-1", "created_time": time.Now(),
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	res, err := c.CreateTask(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "page-1", res.ID)
	assert.Equal(t, "https://notion.so/page-1", res.URL)

	assert.Equal(t, "db-1", got.Parent["database_id"])
	assert.Contains(t, got.Properties, "Name")
	assert.Contains(t, got.Properties, "Priority")
	assert.NotContains(t, got.Properties, "Assignee", "empty assignee is omitted")
	assert.NotEmpty(t, got.Children)
}

func TestCreateTask_MissingToken(t *testing.T) {
	c := NewClient("", "", new(MockMappings), noopLogger{})
	_, err := c.CreateTask(context.Background(), sampleInput())
	assert.Equal(t, pipeline.KindPermanent, pipeline.KindOf(err))
}

func TestCreateTask_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"validation failed"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.CreateTask(context.Background(), sampleInput())
	assert.Equal(t, pipeline.KindPermanent, pipeline.KindOf(err))
	assert.Equal(t, 1, calls)
}

func TestCreateTask_ServerErrorRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.CreateTask(context.Background(), sampleInput())
	assert.Equal(t, pipeline.KindTransient, pipeline.KindOf(err))
	assert.Equal(t, 3, calls)
}

func TestCheckConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/databases/db-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"url":   "https://notion.so/db-1",
			"title": []map[string]any{{"plain_text": "Engineering "}, {"plain_text": "Tasks"}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	info, err := c.CheckConnectivity(context.Background(), "db-1")
	require.NoError(t, err)
	assert.Equal(t, "Engineering Tasks", info.Title)
	assert.Equal(t, "https://notion.so/db-1", info.URL)
}

func TestResolveAssignee(t *testing.T) {
	in := sampleInput()

	t.Run("native uuid used directly", func(t *testing.T) {
		mappings := new(MockMappings)
		c := newTestClient(t, "http://unused", mappings)
		in.Task.Assignee = "3e9f6c40-1f2a-4a7e-9d7b-111111111111"
		assert.Equal(t, in.Task.Assignee, c.resolveAssignee(context.Background(), in))
		mappings.AssertNotCalled(t, "GetUserMapping")
	})

	t.Run("mapped source user", func(t *testing.T) {
		mappings := new(MockMappings)
		mappings.On("GetUserMapping", mock.Anything, "team-1", models.SourceTypeSlack, "T123", "U42").
			Return(&models.UserMapping{NotionUserID: "aaaaaaaa-0000-0000-0000-000000000042"}, nil)
		c := newTestClient(t, "http://unused", mappings)
		in.Task.Assignee = "U42"
		assert.Equal(t, "aaaaaaaa-0000-0000-0000-000000000042", c.resolveAssignee(context.Background(), in))
	})

	t.Run("unresolved degrades to empty", func(t *testing.T) {
		mappings := new(MockMappings)
		mappings.On("GetUserMapping", mock.Anything, "team-1", models.SourceTypeSlack, "T123", "U99").
			Return(nil, repository.ErrNotFound)
		c := newTestClient(t, "http://unused", mappings)
		in.Task.Assignee = "U99"
		assert.Empty(t, c.resolveAssignee(context.Background(), in))
	})
}

func TestBuildProperties_FieldMappingTransforms(t *testing.T) {
	out := &models.FlowOutput{
		DatabaseID: "db-1",
		FieldMappings: map[string]models.FieldMapping{
			"title":    {Property: "Task"},
			"priority": {Property: "Urgency", Type: "select", Values: map[string]string{"high": "P1"}},
			"due_date": {Property: "Deadline", Type: "date"},
		},
	}
	task := &models.DetectedTask{Title: "t", Priority: "high", DueDate: "2025-06-01", Tags: []string{"auth"}}

	props := buildProperties(task, out, "")
	assert.Contains(t, props, "Task")
	assert.Contains(t, props, "Deadline")
	urgency := props["Urgency"].(map[string]any)["select"].(map[string]any)
	assert.Equal(t, "P1", urgency["name"])
	assert.Contains(t, props, "Tags")
}
