package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"discubot/backend/internal/pipeline"
)

// NotionCommentClient fetches page comments from the Notion API. This is the
// source-side client; it authenticates with the per-input integration token,
// not the destination sink's token.
type NotionCommentClient struct {
	baseURL string
	version string
	http    *http.Client
}

// NewNotionCommentClient creates a NotionCommentClient.
func NewNotionCommentClient(version string) *NotionCommentClient {
	if version == "" {
		version = "2022-06-28"
	}
	return &NotionCommentClient{
		baseURL: "https://api.notion.com",
		version: version,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type notionCommentList struct {
	Results []struct {
		ID           string `json:"id"`
		DiscussionID string `json:"discussion_id"`
		CreatedTime  string `json:"created_time"`
		CreatedBy    struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"created_by"`
		Parent struct {
			PageID string `json:"page_id"`
		} `json:"parent"`
		RichText []struct {
			PlainText string `json:"plain_text"`
		} `json:"rich_text"`
	} `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// ListComments implements CommentFetcher, following pagination.
func (c *NotionCommentClient) ListComments(ctx context.Context, token, blockID string) ([]Comment, error) {
	if token == "" {
		return nil, pipeline.New(pipeline.KindPermanent, "notion_fetch", "input has no integration token")
	}

	var comments []Comment
	cursor := ""
	for {
		q := url.Values{"block_id": {blockID}}
		if cursor != "" {
			q.Set("start_cursor", cursor)
		}
		req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/comments?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Notion-Version", c.version)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, pipeline.Wrap(pipeline.KindTransient, "notion_fetch", "comment fetch failed", err)
		}

		var list notionCommentList
		decodeErr := func() error {
			defer resp.Body.Close()
			switch {
			case resp.StatusCode == http.StatusOK:
			case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
				return pipeline.New(pipeline.KindTransient, "notion_fetch",
					fmt.Sprintf("comment fetch returned %d", resp.StatusCode))
			default:
				return pipeline.New(pipeline.KindPermanent, "notion_fetch",
					fmt.Sprintf("comment fetch returned %d", resp.StatusCode))
			}
			return json.NewDecoder(resp.Body).Decode(&list)
		}()
		if decodeErr != nil {
			return nil, decodeErr
		}

		for _, r := range list.Results {
			text := ""
			for _, rt := range r.RichText {
				text += rt.PlainText
			}
			created, _ := time.Parse(time.RFC3339, r.CreatedTime)
			comments = append(comments, Comment{
				ID:           r.ID,
				DiscussionID: r.DiscussionID,
				PageID:       r.Parent.PageID,
				Text:         text,
				AuthorID:     r.CreatedBy.ID,
				AuthorName:   r.CreatedBy.Name,
				CreatedTime:  created,
			})
		}
		if !list.HasMore || list.NextCursor == "" {
			return comments, nil
		}
		cursor = list.NextCursor
	}
}
