package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ledgersync/internal/jobs"
	"github.com/odyssey-erp/ledgersync/internal/notify"
)

const (
	jobPush  = "notify_push"
	jobEmail = "notify_email"
)

// PushSender posts lifecycle notifications to a webhook.
type PushSender struct {
	URL     string
	Client  *http.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes notify:push tasks. Client errors are not retried.
func (s *PushSender) Handle(ctx context.Context, t *asynq.Task) (err error) {
	payload, err := notify.DecodePayload(t)
	if err != nil {
		return fmt.Errorf("decode push payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := s.Metrics.Track(jobPush)
	defer func() { err = tracker.End(err) }()

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push request: %v: %w", err, asynq.SkipRetry)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", payload.Kind+"-"+strconv.FormatInt(payload.TransactionID, 10)+"-"+string(payload.Event))

	resp, err := s.client().Do(req)
	if err != nil {
		return fmt.Errorf("push deliver: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("push deliver: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		s.logger().Warn("push rejected",
			slog.String("number", payload.Number),
			slog.Int("status", resp.StatusCode))
		return fmt.Errorf("push rejected with status %d: %w", resp.StatusCode, asynq.SkipRetry)
	}
	s.logger().Info("push delivered", slog.String("number", payload.Number), slog.String("event", string(payload.Event)))
	return nil
}

func (s *PushSender) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (s *PushSender) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender mails lifecycle notifications over SMTP.
type EmailSender struct {
	Host    string
	Port    int
	From    string
	To      []string
	Send    SendMailFunc
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes notify:email tasks.
func (s *EmailSender) Handle(ctx context.Context, t *asynq.Task) (err error) {
	payload, err := notify.DecodePayload(t)
	if err != nil {
		return fmt.Errorf("decode email payload: %v: %w", err, asynq.SkipRetry)
	}
	if len(s.To) == 0 {
		return fmt.Errorf("email: no recipients: %w", asynq.SkipRetry)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tracker := s.Metrics.Track(jobEmail)
	defer func() { err = tracker.End(err) }()

	send := s.Send
	if send == nil {
		send = smtp.SendMail
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	if err := send(addr, nil, s.From, s.To, s.message(payload)); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return fmt.Errorf("email rejected: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("email deliver: %w", err)
	}
	s.logger().Info("email delivered", slog.String("number", payload.Number), slog.Int("recipients", len(s.To)))
	return nil
}

func (s *EmailSender) message(p notify.Payload) []byte {
	var b strings.Builder
	b.WriteString("From: " + s.From + "\r\n")
	b.WriteString("To: " + strings.Join(s.To, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", p.Title) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(notify.Body(p.Fields), "\n", "\r\n"))
	return []byte(b.String())
}

func (s *EmailSender) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
