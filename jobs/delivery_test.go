package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgersync/internal/notify"
)

func pushTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := notify.NewPushTask(notify.Payload{
		Kind:          "PURCHASE",
		TransactionID: 42,
		Number:        "PB-0001",
		Event:         notify.EventCreated,
		Title:         "PURCHASE PB-0001 created",
		Fields:        map[string]string{"Gross": "1,090.00"},
	})
	require.NoError(t, err)
	return task
}

func TestPushSenderDelivers(t *testing.T) {
	var got notify.Payload
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := &PushSender{URL: srv.URL, Client: srv.Client()}
	require.NoError(t, sender.Handle(context.Background(), pushTask(t)))
	assert.Equal(t, "PB-0001", got.Number)
	assert.Equal(t, "1,090.00", got.Fields["Gross"])
	assert.Equal(t, "PURCHASE-42-created", key)
}

func TestPushSenderRetryPolicy(t *testing.T) {
	status := http.StatusUnprocessableEntity
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	sender := &PushSender{URL: srv.URL, Client: srv.Client()}

	err := sender.Handle(context.Background(), pushTask(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	status = http.StatusServiceUnavailable
	err = sender.Handle(context.Background(), pushTask(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestPushSenderRejectsMalformedPayload(t *testing.T) {
	sender := &PushSender{URL: "http://127.0.0.1:0"}
	err := sender.Handle(context.Background(), asynq.NewTask(notify.TaskPush, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func TestEmailSenderComposesMessage(t *testing.T) {
	var sent sentMail
	sender := &EmailSender{
		Host: "mail.local",
		Port: 1025,
		From: "no-reply@ledgersync.local",
		To:   []string{"ops@example.com", "audit@example.com"},
		Send: func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			sent = sentMail{addr: addr, from: from, to: to, msg: string(msg)}
			return nil
		},
	}
	task, err := notify.NewEmailTask(notify.Payload{
		Kind:   "SALE",
		Number: "SO-9",
		Event:  notify.EventDeleted,
		Title:  "SALE SO-9 deleted",
		Fields: map[string]string{"Party": "500", "Gross": "10.00"},
	})
	require.NoError(t, err)

	require.NoError(t, sender.Handle(context.Background(), task))
	assert.Equal(t, "mail.local:1025", sent.addr)
	assert.Equal(t, "no-reply@ledgersync.local", sent.from)
	assert.Len(t, sent.to, 2)
	assert.Contains(t, sent.msg, "Subject: SALE SO-9 deleted\r\n")
	assert.True(t, strings.HasSuffix(sent.msg, "Gross: 10.00\r\nParty: 500\r\n"), sent.msg)
}

func TestEmailSenderEncodesSubject(t *testing.T) {
	sender := &EmailSender{From: "no-reply@ledgersync.local", To: []string{"ops@example.com"}}
	title := "PURCHASE PB-1\r\nBcc: victim@example.com created"
	msg := string(sender.message(notify.Payload{Title: title, Fields: map[string]string{"Gross": "1.00"}}))

	head, _, found := strings.Cut(msg, "\r\n\r\n")
	require.True(t, found)
	var subject string
	for _, line := range strings.Split(head, "\r\n") {
		assert.False(t, strings.HasPrefix(line, "Bcc:"), line)
		if v, ok := strings.CutPrefix(line, "Subject: "); ok {
			subject = v
		}
	}
	require.NotEmpty(t, subject)
	decoded, err := new(mime.WordDecoder).DecodeHeader(subject)
	require.NoError(t, err)
	assert.Equal(t, title, decoded)
}

func TestEmailSenderRetryPolicy(t *testing.T) {
	task, err := notify.NewEmailTask(notify.Payload{Kind: "SALE", Number: "SO-9", Event: notify.EventCreated})
	require.NoError(t, err)

	var sendErr error
	sender := &EmailSender{
		Host: "mail.local", Port: 25, From: "a@b.c", To: []string{"x@y.z"},
		Send: func(string, smtp.Auth, string, []string, []byte) error { return sendErr },
	}

	sendErr = &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
	assert.ErrorIs(t, sender.Handle(context.Background(), task), asynq.SkipRetry)

	sendErr = errors.New("connection refused")
	err = sender.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	sender.To = nil
	assert.ErrorIs(t, sender.Handle(context.Background(), task), asynq.SkipRetry)
}
