package dispatch

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Requester is the request/reply subset of *nats.Conn.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// NATSDispatcher publishes submissions on a subject and takes the job id
// from the worker's reply.
type NATSDispatcher struct {
	conn    Requester
	subject string
	token   string
	timeout time.Duration
}

// NATSSubmission is the request body published on the dispatch subject.
type NATSSubmission struct {
	Prompt      string `json:"prompt"`
	CallbackURL string `json:"callback_url"`
	Token       string `json:"token,omitempty"`
}

// ConnectNATS dials url with reconnects enabled for the life of the process.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

func NewNATSDispatcher(conn Requester, subject, token string, timeout time.Duration) *NATSDispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &NATSDispatcher{conn: conn, subject: subject, token: token, timeout: timeout}
}

func (d *NATSDispatcher) Dispatch(ctx context.Context, req Request) (string, error) {
	prompt, err := NormalizePrompt(req.Prompt)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(NATSSubmission{Prompt: prompt, CallbackURL: req.CallbackURL, Token: d.token})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	msg, err := d.conn.RequestWithContext(ctx, d.subject, payload)
	if err != nil {
		return "", upstream("nats request %s: %v", d.subject, err)
	}
	if status := msg.Header.Get("Status"); status != "" && status != "200" {
		return "", upstream("nats reply status %s", status)
	}
	var out Ack
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		return "", upstream("decode ack: %v", err)
	}
	if strings.TrimSpace(out.MessageID) == "" {
		return "", upstream("ack carries no messageId")
	}
	return out.MessageID, nil
}

var _ Dispatcher = (*NATSDispatcher)(nil)
