package worker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/drfengyu/dall-e/internal/dispatch"
)

func newIdleWorker(queue int) *Worker {
	w := New(Options{Generator: SyntheticGenerator{}, Notifier: fastNotifier(), Logger: zerolog.Nop(), QueueSize: queue})
	w.newID = func() string { return "msg_test" }
	return w
}

func TestHTTPIntake(t *testing.T) {
	w := newIdleWorker(4)
	srv := httptest.NewServer(NewHTTPIntake(w, "secret", zerolog.Nop()).Router(nil))
	defer srv.Close()

	testCases := []struct {
		name       string
		method     string
		path       string
		body       string
		token      string
		callback   string
		wantStatus int
		wantPrompt string
	}{
		{name: "path prompt", method: http.MethodGet, path: "/" + url.PathEscape("a/b fox?"), token: "secret", callback: "https://app/api/callback", wantStatus: http.StatusAccepted, wantPrompt: "a/b fox?"},
		{name: "json prompt", method: http.MethodPost, path: "/", body: `{"prompt":"fox"}`, token: "secret", callback: "https://app/api/callback", wantStatus: http.StatusAccepted, wantPrompt: "fox"},
		{name: "bad token", method: http.MethodGet, path: "/fox", token: "nope", callback: "https://app/api/callback", wantStatus: http.StatusUnauthorized},
		{name: "no callback", method: http.MethodGet, path: "/fox", token: "secret", wantStatus: http.StatusBadRequest},
		{name: "blank prompt", method: http.MethodGet, path: "/%20%20", token: "secret", callback: "https://app/api/callback", wantStatus: http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(tc.method, srv.URL+tc.path, strings.NewReader(tc.body))
			req.Header.Set("Authorization", "Bearer "+tc.token)
			if tc.callback != "" {
				req.Header.Set(CallbackHeader, tc.callback)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			if tc.wantPrompt == "" {
				return
			}
			var ack dispatch.Ack
			if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil || ack.MessageID != "msg_test" {
				t.Fatalf("ack = %+v, %v", ack, err)
			}
			queued := <-w.queue
			if queued.Prompt != tc.wantPrompt || queued.CallbackURL != tc.callback {
				t.Fatalf("queued %+v", queued)
			}
		})
	}
}

type recordingResponder struct {
	msg *nats.Msg
}

func (r *recordingResponder) RespondMsg(m *nats.Msg) error {
	r.msg = m
	return nil
}

func TestNATSIntake(t *testing.T) {
	w := newIdleWorker(1)
	in := NewNATSIntake(w, "secret", zerolog.Nop())

	submission := func(token string) []byte {
		b, _ := json.Marshal(dispatch.NATSSubmission{Prompt: "fox", CallbackURL: "https://app/api/callback", Token: token})
		return b
	}

	testCases := []struct {
		name       string
		data       []byte
		wantStatus string
		wantID     string
	}{
		{name: "accepted", data: submission("secret"), wantID: "msg_test"},
		{name: "queue full", data: submission("secret"), wantStatus: "503"},
		{name: "bad token", data: submission("nope"), wantStatus: "401"},
		{name: "garbage", data: []byte("nope"), wantStatus: "400"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reply := &recordingResponder{}
			if err := in.Handle(tc.data, reply); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if got := reply.msg.Header.Get("Status"); got != tc.wantStatus {
				t.Fatalf("status header = %q, want %q", got, tc.wantStatus)
			}
			if tc.wantID != "" {
				var ack dispatch.Ack
				if err := json.Unmarshal(reply.msg.Data, &ack); err != nil || ack.MessageID != tc.wantID {
					t.Fatalf("ack = %+v, %v", ack, err)
				}
			}
		})
	}
}
