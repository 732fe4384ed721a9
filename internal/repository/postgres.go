package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"discubot/backend/pkg/models"
)

// ErrNotFound is returned when a point query matches nothing.
var ErrNotFound = errors.New("not found")

// PostgresStore is a PostgreSQL implementation of the Repository interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func wrapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// GetFlow retrieves a flow with its inputs and outputs.
func (s *PostgresStore) GetFlow(ctx context.Context, id string) (*models.Flow, error) {
	var f models.Flow
	err := s.db.QueryRow(ctx,
		`SELECT id, team_id, name, active, created_at, updated_at FROM flows WHERE id = $1`, id).
		Scan(&f.ID, &f.TeamID, &f.Name, &f.Active, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err)
	}

	outputs, err := s.ListOutputs(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	f.Outputs = outputs

	rows, err := s.db.Query(ctx,
		`SELECT id, flow_id, team_id, source_type, credentials, metadata, active, created_at, updated_at
		 FROM flow_inputs WHERE flow_id = $1 ORDER BY created_at`, f.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		in, err := scanInput(rows)
		if err != nil {
			return nil, err
		}
		f.Inputs = append(f.Inputs, in)
	}
	return &f, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInput(row rowScanner) (*models.FlowInput, error) {
	var in models.FlowInput
	var creds, meta []byte
	err := row.Scan(&in.ID, &in.FlowID, &in.TeamID, &in.SourceType, &creds, &meta,
		&in.Active, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(creds) > 0 {
		if err := json.Unmarshal(creds, &in.Credentials); err != nil {
			return nil, fmt.Errorf("decoding input credentials: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &in.Metadata); err != nil {
			return nil, fmt.Errorf("decoding input metadata: %w", err)
		}
	}
	return &in, nil
}

const inputColumns = `id, flow_id, team_id, source_type, credentials, metadata, active, created_at, updated_at`

// GetFlowInput retrieves a flow input by its ID.
func (s *PostgresStore) GetFlowInput(ctx context.Context, id string) (*models.FlowInput, error) {
	in, err := scanInput(s.db.QueryRow(ctx,
		`SELECT `+inputColumns+` FROM flow_inputs WHERE id = $1`, id))
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return in, nil
}

// GetFlowInputByRecipient retrieves the active email input whose alias matches
// the recipient address.
func (s *PostgresStore) GetFlowInputByRecipient(ctx context.Context, recipient string) (*models.FlowInput, error) {
	in, err := scanInput(s.db.QueryRow(ctx,
		`SELECT `+inputColumns+` FROM flow_inputs
		 WHERE source_type = $1 AND active AND metadata->>'recipient' = $2`,
		models.SourceTypeEmailComment, recipient))
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return in, nil
}

// ListActiveInputs lists the active inputs for one source type.
func (s *PostgresStore) ListActiveInputs(ctx context.Context, sourceType models.SourceType) ([]*models.FlowInput, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+inputColumns+` FROM flow_inputs
		 WHERE source_type = $1 AND active ORDER BY created_at`, sourceType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inputs []*models.FlowInput
	for rows.Next() {
		in, err := scanInput(rows)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

// ListOutputs lists the outputs configured for a flow.
func (s *PostgresStore) ListOutputs(ctx context.Context, flowID string) ([]*models.FlowOutput, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, flow_id, destination, database_id, credentials, domain_filter, is_default, field_mappings, created_at
		 FROM flow_outputs WHERE flow_id = $1 ORDER BY created_at`, flowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outputs []*models.FlowOutput
	for rows.Next() {
		var o models.FlowOutput
		var creds, mappings []byte
		err := rows.Scan(&o.ID, &o.FlowID, &o.Destination, &o.DatabaseID, &creds,
			&o.DomainFilter, &o.IsDefault, &mappings, &o.CreatedAt)
		if err != nil {
			return nil, err
		}
		if len(creds) > 0 {
			if err := json.Unmarshal(creds, &o.Credentials); err != nil {
				return nil, fmt.Errorf("decoding output credentials: %w", err)
			}
		}
		if len(mappings) > 0 {
			if err := json.Unmarshal(mappings, &o.FieldMappings); err != nil {
				return nil, fmt.Errorf("decoding field mappings: %w", err)
			}
		}
		outputs = append(outputs, &o)
	}
	return outputs, rows.Err()
}

// UpdateInputMetadata replaces the metadata bag of an input. Used by the
// Notion adapter's workspace/integration auto-capture.
func (s *PostgresStore) UpdateInputMetadata(ctx context.Context, inputID string, metadata map[string]string) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`UPDATE flow_inputs SET metadata = $1, updated_at = now() WHERE id = $2`, meta, inputID)
	return err
}

// Configuration writes below are used by the admin CLI; the pipeline itself
// only reads flow configuration.

// CreateFlow inserts a flow record.
func (s *PostgresStore) CreateFlow(ctx context.Context, f *models.Flow) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO flows (id, team_id, name, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())`,
		f.ID, f.TeamID, f.Name, f.Active)
	return err
}

// CreateFlowInput inserts a flow input record.
func (s *PostgresStore) CreateFlowInput(ctx context.Context, in *models.FlowInput) error {
	creds, err := json.Marshal(in.Credentials)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(in.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO flow_inputs (id, flow_id, team_id, source_type, credentials, metadata, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())`,
		in.ID, in.FlowID, in.TeamID, in.SourceType, creds, meta, in.Active)
	return err
}

// CreateFlowOutput inserts a flow output record.
func (s *PostgresStore) CreateFlowOutput(ctx context.Context, o *models.FlowOutput) error {
	creds, err := json.Marshal(o.Credentials)
	if err != nil {
		return err
	}
	mappings, err := json.Marshal(o.FieldMappings)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO flow_outputs (id, flow_id, destination, database_id, credentials, domain_filter, is_default, field_mappings, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		o.ID, o.FlowID, o.Destination, o.DatabaseID, creds, o.DomainFilter, o.IsDefault, mappings)
	return err
}

// ListFlows lists every flow for the admin CLI.
func (s *PostgresStore) ListFlows(ctx context.Context) ([]*models.Flow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, team_id, name, active, created_at, updated_at FROM flows ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flows []*models.Flow
	for rows.Next() {
		var f models.Flow
		if err := rows.Scan(&f.ID, &f.TeamID, &f.Name, &f.Active, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		flows = append(flows, &f)
	}
	return flows, rows.Err()
}

// GetDiscussion retrieves a discussion by its ID.
func (s *PostgresStore) GetDiscussion(ctx context.Context, id string) (*models.Discussion, error) {
	var d models.Discussion
	err := s.db.QueryRow(ctx,
		`SELECT id, flow_input_id, team_id, source_type, source_thread_id, title, summary, status, created_at, updated_at
		 FROM discussions WHERE id = $1`, id).
		Scan(&d.ID, &d.FlowInputID, &d.TeamID, &d.SourceType, &d.SourceThreadID,
			&d.Title, &d.Summary, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &d, nil
}

// GetDiscussionBySourceThread retrieves a discussion by its stable source
// thread identifier. This is the de-duplication lookup.
func (s *PostgresStore) GetDiscussionBySourceThread(ctx context.Context, teamID string, sourceType models.SourceType, threadID string) (*models.Discussion, error) {
	var d models.Discussion
	err := s.db.QueryRow(ctx,
		`SELECT id, flow_input_id, team_id, source_type, source_thread_id, title, summary, status, created_at, updated_at
		 FROM discussions WHERE team_id = $1 AND source_type = $2 AND source_thread_id = $3`,
		teamID, sourceType, threadID).
		Scan(&d.ID, &d.FlowInputID, &d.TeamID, &d.SourceType, &d.SourceThreadID,
			&d.Title, &d.Summary, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &d, nil
}

// CreateDiscussion inserts a discussion record.
func (s *PostgresStore) CreateDiscussion(ctx context.Context, d *models.Discussion) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO discussions (id, flow_input_id, team_id, source_type, source_thread_id, title, summary, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`,
		d.ID, d.FlowInputID, d.TeamID, d.SourceType, d.SourceThreadID, d.Title, d.Summary, d.Status)
	return err
}

// UpdateDiscussionStatus updates a discussion's status and summary.
func (s *PostgresStore) UpdateDiscussionStatus(ctx context.Context, id string, status models.DiscussionStatus, summary string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE discussions SET status = $1, summary = $2, updated_at = now() WHERE id = $3`,
		status, summary, id)
	return err
}

// CreateTask inserts a task record.
func (s *PostgresStore) CreateTask(ctx context.Context, t *models.Task) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tasks (id, discussion_id, flow_output_id, title, description, domain, status, notion_page_id, notion_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		t.ID, t.DiscussionID, t.FlowOutputID, t.Title, t.Description, t.Domain,
		t.Status, t.NotionPageID, t.NotionURL)
	return err
}

// UpdateTaskDelivery records the delivery outcome of a task.
func (s *PostgresStore) UpdateTaskDelivery(ctx context.Context, id string, status models.TaskStatus, pageID, url string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE tasks SET status = $1, notion_page_id = $2, notion_url = $3, updated_at = now() WHERE id = $4`,
		status, pageID, url, id)
	return err
}

// GetTaskByNotionPageID resolves a task from its Notion page. First step of
// the completion-notification callback chain.
func (s *PostgresStore) GetTaskByNotionPageID(ctx context.Context, pageID string) (*models.Task, error) {
	var t models.Task
	err := s.db.QueryRow(ctx,
		`SELECT id, discussion_id, flow_output_id, title, description, domain, status, notion_page_id, notion_url, created_at, updated_at
		 FROM tasks WHERE notion_page_id = $1`, pageID).
		Scan(&t.ID, &t.DiscussionID, &t.FlowOutputID, &t.Title, &t.Description,
			&t.Domain, &t.Status, &t.NotionPageID, &t.NotionURL, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &t, nil
}

// GetUserMapping resolves a source identity to a Notion user.
func (s *PostgresStore) GetUserMapping(ctx context.Context, teamID string, sourceType models.SourceType, workspaceID, sourceUserID string) (*models.UserMapping, error) {
	var m models.UserMapping
	err := s.db.QueryRow(ctx,
		`SELECT id, team_id, source_type, source_workspace_id, source_user_id, notion_user_id, confidence, active, created_at
		 FROM user_mappings
		 WHERE team_id = $1 AND source_type = $2 AND source_workspace_id = $3 AND source_user_id = $4 AND active`,
		teamID, sourceType, workspaceID, sourceUserID).
		Scan(&m.ID, &m.TeamID, &m.SourceType, &m.SourceWorkspaceID, &m.SourceUserID,
			&m.NotionUserID, &m.Confidence, &m.Active, &m.CreatedAt)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &m, nil
}

// CreateInboxMessage stores an auxiliary email.
func (s *PostgresStore) CreateInboxMessage(ctx context.Context, m *models.InboxMessage) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO inbox_messages (id, flow_input_id, category, sender, subject, body, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.FlowInputID, m.Category, m.From, m.Subject, m.Body, m.ReceivedAt)
	return err
}
