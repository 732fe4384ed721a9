package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"discubot/backend/internal/adapters"
	"discubot/backend/pkg/models"
)

// HandleMailgunWebhook receives forwarded-email notifications.
// (POST /webhooks/mailgun)
func (s *Server) HandleMailgunWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	source := string(models.SourceTypeEmailComment)
	s.metrics.EventReceived(ctx, source)

	form, err := c.FormParams()
	if err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "invalid form body")
	}

	if err := s.verifier.Mailgun(s.cfg.Sources.MailgunSigningKey,
		form.Get("timestamp"), form.Get("token"), form.Get("signature")); err != nil {
		return s.webhookError(c, source, err)
	}

	adapter, err := s.registry.Get(models.SourceTypeEmailComment)
	if err != nil {
		return s.webhookError(c, source, err)
	}
	res, err := adapter.Parse(ctx, []byte(form.Encode()))
	if err != nil {
		return s.webhookError(c, source, err)
	}
	return s.respond(c, source, res)
}

// HandleResendWebhook receives Svix-signed email events. The payload is
// metadata-only; the message itself is fetched from the Resend API.
// (POST /webhooks/resend)
func (s *Server) HandleResendWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	source := string(models.SourceTypeEmailComment)
	s.metrics.EventReceived(ctx, source)

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "unreadable body")
	}

	h := c.Request().Header
	if err := s.verifier.Svix(s.cfg.Sources.ResendSvixSecret,
		h.Get("svix-id"), h.Get("svix-timestamp"), body, h.Get("svix-signature")); err != nil {
		return s.webhookError(c, source, err)
	}

	adapter, err := s.registry.Get(models.SourceTypeEmailComment)
	if err != nil {
		return s.webhookError(c, source, err)
	}
	res, err := adapter.Parse(ctx, body)
	if err != nil {
		return s.webhookError(c, source, err)
	}
	return s.respond(c, source, res)
}

// HandleSlackWebhook receives chat events. Slack expects an acknowledgement
// within seconds, so processing runs detached and the outcome is observable
// through the stored records.
// (POST /webhooks/slack)
func (s *Server) HandleSlackWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	source := string(models.SourceTypeSlack)
	s.metrics.EventReceived(ctx, source)

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "unreadable body")
	}

	h := c.Request().Header
	if err := s.verifier.Slack(s.cfg.Sources.SlackSigningSecret,
		h.Get("X-Slack-Request-Timestamp"), body, h.Get("X-Slack-Signature")); err != nil {
		return s.webhookError(c, source, err)
	}

	adapter, err := s.registry.Get(models.SourceTypeSlack)
	if err != nil {
		return s.webhookError(c, source, err)
	}
	res, err := adapter.Parse(ctx, body)
	if err != nil {
		return s.webhookError(c, source, err)
	}
	if res.Challenge != "" {
		return c.JSON(http.StatusOK, map[string]string{"challenge": res.Challenge})
	}
	if res.Ignored != "" {
		s.metrics.EventIgnored(ctx, source)
		return ignored(c, res.Ignored)
	}

	s.processor.ProcessAsync(ctx, res.Discussion, res.Input)
	return c.JSON(http.StatusOK, map[string]string{"status": "accepted"})
}

// HandleNotionWebhook receives wiki comment events. Signature verification
// covers the exact raw bytes received, and the payload timestamp is checked
// against the replay window before any processing.
// (POST /webhooks/notion)
func (s *Server) HandleNotionWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	source := string(models.SourceTypeNotion)
	s.metrics.EventReceived(ctx, source)

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "unreadable body")
	}

	if err := s.verifier.Notion(s.cfg.Sources.NotionWebhookSecret, body,
		c.Request().Header.Get("X-Notion-Signature")); err != nil {
		return s.webhookError(c, source, err)
	}

	var envelope struct {
		VerificationToken string `json:"verification_token"`
		Timestamp         string `json:"timestamp"`
	}
	// Malformed JSON falls through to the adapter, which owns parse errors.
	// Every decodable non-challenge event must pass the replay check: a
	// missing or unparseable timestamp leaves ts zero, which always fails it.
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.VerificationToken == "" {
		ts, _ := time.Parse(time.RFC3339, envelope.Timestamp)
		if err := s.verifier.Timestamp(ts); err != nil {
			return s.webhookError(c, source, err)
		}
	}

	adapter, err := s.registry.Get(models.SourceTypeNotion)
	if err != nil {
		return s.webhookError(c, source, err)
	}
	res, err := adapter.Parse(ctx, body)
	if err != nil {
		return s.webhookError(c, source, err)
	}
	if res.Challenge != "" {
		return c.JSON(http.StatusOK, map[string]string{"verification_token": res.Challenge})
	}
	return s.respond(c, source, res)
}

// respond runs a parsed discussion through the processor synchronously and
// returns the processing result, including the ids and URLs of any created
// tasks.
func (s *Server) respond(c echo.Context, source string, res *adapters.Result) error {
	ctx := c.Request().Context()

	if res.Ignored != "" {
		s.metrics.EventIgnored(ctx, source)
		return ignored(c, res.Ignored)
	}

	out, err := s.processor.Process(ctx, res.Discussion, res.Input)
	if err != nil {
		return s.webhookError(c, source, err)
	}
	if out.Ignored != "" {
		return ignored(c, out.Ignored)
	}
	return c.JSON(http.StatusOK, out)
}
