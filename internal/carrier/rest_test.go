package carrier_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"testing"

	"github.com/phonio-ai/phonio/internal/carrier"
)

// restCall captures one request seen by the mock API.
type restCall struct {
	path string
	form url.Values
	user string
	pass string
}

func startRESTServer(t *testing.T, status int, body string) (*carrier.RESTClient, chan restCall) {
	t.Helper()
	calls := make(chan restCall, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		user, pass, _ := r.BasicAuth()
		calls <- restCall{path: r.URL.Path, form: r.PostForm, user: user, pass: pass}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c, err := carrier.NewRESTClient("AC123", "token-456", carrier.WithRESTBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewRESTClient: %v", err)
	}
	return c, calls
}

func TestRESTClient_Dial(t *testing.T) {
	t.Parallel()
	c, calls := startRESTServer(t, http.StatusCreated, `{"sid":"CA999","status":"queued"}`)

	sid, err := c.Dial(context.Background(), carrier.DialRequest{
		To:             "+15550002222",
		From:           "+15550001111",
		VoiceURL:       "https://voice.example.com/carrier/voice",
		StatusCallback: "https://voice.example.com/carrier/status",
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if sid != "CA999" {
		t.Errorf("sid = %q; want CA999", sid)
	}

	call := <-calls
	if call.path != "/2010-04-01/Accounts/AC123/Calls.json" {
		t.Errorf("path = %q", call.path)
	}
	if call.user != "AC123" || call.pass != "token-456" {
		t.Errorf("basic auth = %q/%q", call.user, call.pass)
	}
	if call.form.Get("To") != "+15550002222" {
		t.Errorf("To = %q", call.form.Get("To"))
	}
	if call.form.Get("From") != "+15550001111" {
		t.Errorf("From = %q", call.form.Get("From"))
	}
	if call.form.Get("Url") != "https://voice.example.com/carrier/voice" {
		t.Errorf("Url = %q", call.form.Get("Url"))
	}
	if call.form.Get("StatusCallback") == "" {
		t.Error("StatusCallback not sent")
	}
	wantEvents := []string{"initiated", "ringing", "answered", "completed"}
	if got := call.form["StatusCallbackEvent"]; !slices.Equal(got, wantEvents) {
		t.Errorf("StatusCallbackEvent = %v; want %v", got, wantEvents)
	}
}

func TestRESTClient_DialValidatesRequest(t *testing.T) {
	t.Parallel()
	c, err := carrier.NewRESTClient("AC123", "token")
	if err != nil {
		t.Fatalf("NewRESTClient: %v", err)
	}
	if _, err := c.Dial(context.Background(), carrier.DialRequest{To: "+15550002222"}); err == nil {
		t.Error("expected error for missing from and voice url")
	}
}

func TestRESTClient_Hangup(t *testing.T) {
	t.Parallel()
	c, calls := startRESTServer(t, http.StatusOK, `{"sid":"CA999","status":"completed"}`)

	if err := c.Hangup(context.Background(), "CA999"); err != nil {
		t.Fatalf("Hangup: %v", err)
	}

	call := <-calls
	if call.path != "/2010-04-01/Accounts/AC123/Calls/CA999.json" {
		t.Errorf("path = %q", call.path)
	}
	if call.form.Get("Status") != "completed" {
		t.Errorf("Status = %q; want completed", call.form.Get("Status"))
	}
}

func TestRESTClient_APIErrorSurfaces(t *testing.T) {
	t.Parallel()
	c, _ := startRESTServer(t, http.StatusUnauthorized, `{"code":20003,"message":"Authenticate"}`)

	_, err := c.Dial(context.Background(), carrier.DialRequest{
		To: "+15550002222", From: "+15550001111", VoiceURL: "https://example.com/voice",
	})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestNewRESTClient_RequiresCredentials(t *testing.T) {
	t.Parallel()
	if _, err := carrier.NewRESTClient("", "token"); err == nil {
		t.Error("expected error for empty account SID")
	}
	if _, err := carrier.NewRESTClient("AC123", ""); err == nil {
		t.Error("expected error for empty auth token")
	}
}
