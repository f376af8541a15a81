package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"

	"github.com/victornm/quizbot/internal/game"
)

const signatureHeader = "X-Twilio-Signature"

// WhatsAppWebhook handles an inbound Twilio message and replies with TwiML.
func (a *API) WhatsAppWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, "invalid form")
		return
	}

	if a.twilio.ValidateSignature && !a.validSignature(c) {
		slog.WarnContext(ctx, "webhook: invalid twilio signature", "remote", c.ClientIP())
		c.String(http.StatusForbidden, "invalid signature")
		return
	}

	reply, err := a.game.HandleMessage(ctx, game.InboundMessage{
		From:        c.PostForm("From"),
		Body:        c.PostForm("Body"),
		ProfileName: c.PostForm("ProfileName"),
	})
	if err != nil {
		slog.ErrorContext(ctx, "webhook: handle message failed", "error", err)
	}

	body, err := twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: reply}})
	if err != nil {
		slog.ErrorContext(ctx, "webhook: render twiml failed", "error", err)
		c.String(http.StatusInternalServerError, "")
		return
	}

	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(body))
}

func (a *API) validSignature(c *gin.Context) bool {
	params := make(map[string]string, len(c.Request.PostForm))
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	v := client.NewRequestValidator(a.twilio.AuthToken)
	return v.Validate(a.webhookURL(c), params, c.GetHeader(signatureHeader))
}

func (a *API) webhookURL(c *gin.Context) string {
	if a.twilio.WebhookURL != "" {
		return a.twilio.WebhookURL
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if p := c.GetHeader("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}
