package db

import (
	"net/url"
	"testing"

	"inboxwhats/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DBConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "inbox",
		Password: "p@ss:w/rd",
		Name:     "inboxwhats",
	})

	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse %q: %v", dsn, err)
	}
	if pw, _ := u.User.Password(); pw != "p@ss:w/rd" {
		t.Errorf("password = %q", pw)
	}
	if u.Host != "db.internal:5432" || u.Path != "/inboxwhats" {
		t.Errorf("host/path = %s %s", u.Host, u.Path)
	}
	if got := u.Query().Get("sslmode"); got != "disable" {
		t.Errorf("sslmode = %q", got)
	}

	dsn = DSN(config.DBConfig{Host: "h", Port: 1, Name: "n", SSLMode: "require"})
	if u, _ := url.Parse(dsn); u.Query().Get("sslmode") != "require" {
		t.Errorf("sslmode not applied: %s", dsn)
	}
}
