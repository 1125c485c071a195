package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"inboxwhats/pkg/util"
)

func TestWhatsAppAddress(t *testing.T) {
	tests := map[string]string{
		"+5511999990000":          "whatsapp:+5511999990000",
		"whatsapp:+5511999990000": "whatsapp:+5511999990000",
	}
	for in, want := range tests {
		if got := WhatsAppAddress(in); got != want {
			t.Errorf("WhatsAppAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSendMessage(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("basic auth = %q/%q", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"To":   r.PostForm.Get("To"),
			"From": r.PostForm.Get("From"),
			"Body": r.PostForm.Get("Body"),
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(Config{AccountSID: "AC123", AuthToken: "secret", From: "+14155238886", BaseURL: srv.URL}, zap.NewNop())
	if err := c.SendMessage(context.Background(), "+5511999990000", "hello"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	want := map[string]string{"To": "whatsapp:+5511999990000", "From": "whatsapp:+14155238886", "Body": "hello"}
	for k, v := range want {
		if gotForm[k] != v {
			t.Errorf("%s = %q, want %q", k, gotForm[k], v)
		}
	}
}

func TestSendMessageStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":21211}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{AccountSID: "AC123", AuthToken: "secret", BaseURL: srv.URL}, zap.NewNop())
	err := c.SendMessage(context.Background(), "+1", "x")
	var se *util.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("error = %v, want StatusError 400", err)
	}
}

func TestSendMessageWithoutCredentialsIsLoggedOnly(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())
	if err := c.SendMessage(context.Background(), "+1", "x"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
}

func TestDownloadMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			t.Error("missing basic auth")
		}
		_, _ = w.Write([]byte("OggS-audio"))
	}))
	defer srv.Close()

	c := NewClient(Config{AccountSID: "AC123", AuthToken: "secret"}, zap.NewNop())
	data, err := c.DownloadMedia(context.Background(), srv.URL+"/media/ME1")
	if err != nil {
		t.Fatalf("DownloadMedia() error = %v", err)
	}
	if string(data) != "OggS-audio" {
		t.Errorf("data = %q", data)
	}
}
