package emailsvc

import (
	"bytes"
	"log"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/miescuela/core"
)

type recLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recLogger) Debug(string, ...interface{}) {}
func (l *recLogger) Info(string, ...interface{})  {}
func (l *recLogger) Warn(string, ...interface{})  {}
func (l *recLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}
func (l *recLogger) Fatal(string, ...interface{}) {}

func testConf() *core.Config {
	return &core.Config{
		AppName:          "MiEscuela",
		DefaultFromEmail: mail.Address{Name: "MiEscuela", Address: "noreply@test.test"},
		SendgridAPIKey:   "sg-key",
	}
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	ResetSentMessages()
	t.Cleanup(ResetSentMessages)
	svc := NewConsoleServiceMock(new(recLogger), testConf())

	withRecipient := &core.EmailMessage{
		To:      []mail.Address{{Name: "Tere", Address: "tere@test.test"}},
		Subject: "hello",
		BodyStr: "body",
	}
	noRecipient := &core.EmailMessage{Subject: "lost", BodyStr: "body"}
	noContent := &core.EmailMessage{To: []mail.Address{{Address: "x@test.test"}}, Subject: "empty"}
	svc.SendMessages(withRecipient, noRecipient, noContent)

	require.Len(t, SentMessages, 1)
	assert.Equal(t, "hello", SentMessages[0].Subject)
	assert.Equal(t, "body", SentMessages[0].TextContent)
}

func TestConsoleService_compose(t *testing.T) {
	out := new(bytes.Buffer)
	svc := NewConsoleService(log.New(out, "", 0), new(recLogger), testConf())

	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Tere", Address: "tere@test.test"}},
		Cc:          []mail.Address{{Address: "cc@test.test"}},
		Subject:     "Grades saved: 1st A - Math",
		TextContent: "plain",
		HTMLContent: "<p>html</p>",
	}

	t.Run("alternative", func(t *testing.T) {
		body, err := svc.compose(msg)
		require.NoError(t, err)
		assert.Contains(t, body, "From: \"MiEscuela\" <noreply@test.test>\r\n")
		assert.Contains(t, body, "Subject: [MiEscuela] Grades saved: 1st A - Math\r\n")
		assert.Contains(t, body, "To: \"Tere\" <tere@test.test>\r\n")
		assert.Contains(t, body, "CC: <cc@test.test>\r\n")
		assert.Contains(t, body, "Content-Type: multipart/alternative; boundary=")
		assert.NotContains(t, body, "multipart/mixed")
		assert.Contains(t, body, "plain")
		assert.Contains(t, body, "<p>html</p>")
	})

	t.Run("mixed", func(t *testing.T) {
		m := msg
		require.NoError(t, m.Attach(strings.NewReader("xlsx bytes"), "1st_A_-_Math.xlsx", "application/octet-stream"))
		body, err := svc.compose(m)
		require.NoError(t, err)
		assert.Contains(t, body, "Content-Type: multipart/mixed; boundary=")
		assert.Contains(t, body, "Content-Type: multipart/alternative; boundary=")
		assert.Contains(t, body, "attachment; filename=1st_A_-_Math.xlsx")
		assert.Contains(t, body, m.Attachments[0].Content.String())
	})
}

func TestSendgridService_send(t *testing.T) {
	var (
		gotReq rest.Request
		calls  int
	)
	origAPIFunc := sendgridAPIFunc
	defer func() { sendgridAPIFunc = origAPIFunc }()
	sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
		calls++
		gotReq = req
		return &rest.Response{StatusCode: http.StatusAccepted}, nil
	}

	logger := new(recLogger)
	svc := NewSendgridService(logger, testConf())
	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Tere", Address: "tere@test.test"}},
		Subject:     "Grades saved",
		TextContent: "plain",
	}
	require.NoError(t, msg.Attach(strings.NewReader("xlsx bytes"), "grades.xlsx", "application/octet-stream"))
	svc.send(msg)

	require.Equal(t, 1, calls)
	assert.Equal(t, rest.Post, gotReq.Method)
	assert.Equal(t, "https://api.sendgrid.com/v3/mail/send", gotReq.BaseURL)
	assert.Equal(t, "Bearer sg-key", gotReq.Headers["Authorization"])
	body := string(gotReq.Body)
	assert.Contains(t, body, `"subject":"[MiEscuela] Grades saved"`)
	assert.Contains(t, body, `"email":"tere@test.test"`)
	assert.Contains(t, body, `"filename":"grades.xlsx"`)
	assert.Empty(t, logger.errors)

	t.Run("error status is logged", func(t *testing.T) {
		sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
			return &rest.Response{StatusCode: http.StatusBadRequest, Body: "bad"}, nil
		}
		svc.send(msg)
		require.Len(t, logger.errors, 1)
		assert.Contains(t, logger.errors[0], "status: 400")
	})
}
