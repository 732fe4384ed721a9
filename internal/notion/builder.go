package notion

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"discubot/backend/pkg/models"
)

// Notion caps a single rich_text element at 2000 characters.
const maxRichTextLen = 2000

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func truncate(s string) string {
	if len(s) <= maxRichTextLen {
		return s
	}
	return s[:maxRichTextLen-1] + "…"
}

func richText(content string) []any {
	return []any{map[string]any{
		"type": "text",
		"text": map[string]any{"content": truncate(content)},
	}}
}

func richTextLink(content, url string) []any {
	return []any{map[string]any{
		"type": "text",
		"text": map[string]any{
			"content": truncate(content),
			"link":    map[string]any{"url": url},
		},
	}}
}

// mapping returns the configured mapping for a task field, or a default.
func mapping(out *models.FlowOutput, field, defProperty, defType string) models.FieldMapping {
	if m, ok := out.FieldMappings[field]; ok {
		if m.Type == "" {
			m.Type = defType
		}
		return m
	}
	return models.FieldMapping{Property: defProperty, Type: defType}
}

// transform applies the mapping's per-value table, passing unknown values
// through unchanged.
func transform(m models.FieldMapping, value string) string {
	if mapped, ok := m.Values[value]; ok {
		return mapped
	}
	return value
}

func propertyValue(typ, value string) map[string]any {
	switch typ {
	case "multi_select":
		return map[string]any{"multi_select": []any{map[string]any{"name": value}}}
	case "date":
		return map[string]any{"date": map[string]any{"start": value}}
	case "rich_text":
		return map[string]any{"rich_text": richText(value)}
	case "status":
		return map[string]any{"status": map[string]any{"name": value}}
	default:
		return map[string]any{"select": map[string]any{"name": value}}
	}
}

// buildProperties builds the page property map: the title plus whichever
// mapped fields the task carries. assigneeID is empty when the assignee could
// not be resolved, in which case the property is omitted.
func buildProperties(task *models.DetectedTask, out *models.FlowOutput, assigneeID string) map[string]any {
	titleProp := "Name"
	if m, ok := out.FieldMappings["title"]; ok && m.Property != "" {
		titleProp = m.Property
	}
	props := map[string]any{
		titleProp: map[string]any{"title": richText(task.Title)},
	}

	if task.Priority != "" {
		m := mapping(out, "priority", "Priority", "select")
		props[m.Property] = propertyValue(m.Type, transform(m, task.Priority))
	}
	if task.Type != "" {
		m := mapping(out, "type", "Type", "select")
		props[m.Property] = propertyValue(m.Type, transform(m, task.Type))
	}
	if task.DueDate != "" {
		m := mapping(out, "due_date", "Due", "date")
		props[m.Property] = propertyValue(m.Type, transform(m, task.DueDate))
	}
	if len(task.Tags) > 0 {
		m := mapping(out, "tags", "Tags", "multi_select")
		tags := make([]any, 0, len(task.Tags))
		for _, tag := range task.Tags {
			tags = append(tags, map[string]any{"name": transform(m, tag)})
		}
		props[m.Property] = map[string]any{"multi_select": tags}
	}
	if assigneeID != "" {
		m := mapping(out, "assignee", "Assignee", "people")
		props[m.Property] = map[string]any{
			"people": []any{map[string]any{"object": "user", "id": assigneeID}},
		}
	}
	return props
}

func paragraph(content string) map[string]any {
	return map[string]any{
		"object":    "block",
		"type":      "paragraph",
		"paragraph": map[string]any{"rich_text": richText(content)},
	}
}

func heading(content string) map[string]any {
	return map[string]any{
		"object":    "block",
		"type":      "heading_2",
		"heading_2": map[string]any{"rich_text": richText(content)},
	}
}

// messageLink reconstructs a deep link back to a message at its source using
// the adapter-provided metadata bag.
func messageLink(d *models.ParsedDiscussion, m models.Message) string {
	switch d.SourceType {
	case models.SourceTypeNotion:
		if d.PageID != "" {
			page := strings.ReplaceAll(d.PageID, "-", "")
			if m.ID != "" {
				return fmt.Sprintf("https://www.notion.so/%s#%s", page, strings.ReplaceAll(m.ID, "-", ""))
			}
			return "https://www.notion.so/" + page
		}
	case models.SourceTypeSlack:
		if base := d.Metadata["permalink_base"]; base != "" && m.ID != "" {
			return base + "/p" + strings.ReplaceAll(m.ID, ".", "")
		}
	case models.SourceTypeEmailComment:
		return d.Metadata["thread_url"]
	}
	return d.Metadata["thread_url"]
}

// buildChildren builds the structured content body of a task page: summary
// callout, action-item checklist, collapsible key points, participants with
// resolved mentions, the full transcript with per-message source links, and a
// trailing metadata section.
func buildChildren(d *models.ParsedDiscussion, summary *models.AISummary, task *models.DetectedTask) []any {
	var blocks []any

	if summary != nil && summary.Summary != "" {
		blocks = append(blocks, map[string]any{
			"object": "block",
			"type":   "callout",
			"callout": map[string]any{
				"rich_text": richText(summary.Summary),
				"icon":      map[string]any{"type": "emoji", "emoji": "🤖"},
			},
		})
	}

	if len(task.ActionItems) > 0 {
		blocks = append(blocks, heading("Action items"))
		for _, item := range task.ActionItems {
			blocks = append(blocks, map[string]any{
				"object": "block",
				"type":   "to_do",
				"to_do": map[string]any{
					"rich_text": richText(item),
					"checked":   false,
				},
			})
		}
	}

	if summary != nil && len(summary.KeyPoints) > 0 {
		var points []any
		for _, p := range summary.KeyPoints {
			points = append(points, map[string]any{
				"object":             "block",
				"type":               "bulleted_list_item",
				"bulleted_list_item": map[string]any{"rich_text": richText(p)},
			})
		}
		blocks = append(blocks, map[string]any{
			"object": "block",
			"type":   "toggle",
			"toggle": map[string]any{
				"rich_text": richText("Key points"),
				"children":  points,
			},
		})
	}

	if len(d.Participants) > 0 {
		blocks = append(blocks,
			heading("Participants"),
			paragraph(strings.Join(d.Participants, ", ")))
	}

	var transcript []any
	for _, m := range d.Messages() {
		line := fmt.Sprintf("%s: %s", authorLabel(m), m.Content)
		if link := messageLink(d, m); link != "" {
			transcript = append(transcript, map[string]any{
				"object":    "block",
				"type":      "paragraph",
				"paragraph": map[string]any{"rich_text": richTextLink(line, link)},
			})
		} else {
			transcript = append(transcript, paragraph(line))
		}
	}
	blocks = append(blocks, map[string]any{
		"object": "block",
		"type":   "toggle",
		"toggle": map[string]any{
			"rich_text": richText("Thread"),
			"children":  transcript,
		},
	})

	blocks = append(blocks,
		map[string]any{"object": "block", "type": "divider", "divider": map[string]any{}},
		paragraph(fmt.Sprintf("Source: %s · Thread: %s", d.SourceType, d.SourceThreadID)))

	return blocks
}

func authorLabel(m models.Message) string {
	if m.AuthorName != "" {
		return m.AuthorName
	}
	return m.AuthorID
}
