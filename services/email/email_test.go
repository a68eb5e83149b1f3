package emailsvc

import (
	"encoding/json"
	"net/mail"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telatku/telatku/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

var testConf = &core.Config{
	AppName:         "Telatku",
	FrontendBaseURL: "http://front.test",
	FromEmail:       "Telatku <noreply@school.test>",
	SendgridApiKey:  "SG.test",
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	ClearSentMessages()
	svc := NewConsoleServiceMock(testConf, nopLogger{})

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Budi", Address: "budi@school.test"}},
			Subject:      "Reset your password",
			TemplateName: "password_reset",
			TemplateData: map[string]interface{}{"Name": "Budi", "UID": "uid", "Token": "tok"},
		},
		&core.EmailMessage{Subject: "no recipient", BodyStr: "dropped"},
	)

	require.Len(t, SentMessages, 1)
	sent := SentMessages[0]
	assert.Contains(t, sent.TextContent, "Hello Budi")
	assert.Contains(t, sent.HTMLContent, "http://front.test/reset-password?uid=uid")
}

func TestSendgridService_send(t *testing.T) {
	var body []byte
	origSend := sendRequest
	sendRequest = func(req rest.Request) (*rest.Response, error) {
		body = req.Body
		return &rest.Response{StatusCode: 202}, nil
	}
	t.Cleanup(func() { sendRequest = origSend })

	svc := NewSendgridService(testConf, nopLogger{}).(*sendgridService)
	svc.send(core.EmailMessage{
		To:          []mail.Address{{Address: "wali@school.test"}},
		Subject:     "Keterlambatan",
		TextContent: "text",
		HTMLContent: "<p>html</p>",
	})

	var payload struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			Subject string `json:"subject"`
			To      []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
		Content []struct {
			Type string `json:"type"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))

	assert.Equal(t, "noreply@school.test", payload.From.Email)
	require.Len(t, payload.Personalizations, 1)
	assert.Equal(t, "[Telatku] Keterlambatan", payload.Personalizations[0].Subject)
	assert.Equal(t, "wali@school.test", payload.Personalizations[0].To[0].Email)
	require.Len(t, payload.Content, 2)
	assert.Equal(t, "text/plain", payload.Content[0].Type)
	assert.Equal(t, "text/html", payload.Content[1].Type)
}
