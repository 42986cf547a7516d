package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"cbd-eventstream/internal/cbdauth"
)

func TestRun_IssuesVerifiableToken(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-c", "client-9", "-n", "tool.example.com", "-v", "3.2", "-l", "120", "key-7", "s3cret"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run() = %d, stderr = %s", code, stderr.String())
	}
	raw := strings.TrimSpace(stdout.String())
	token, err := cbdauth.Verify(raw, "s3cret", time.Now())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	want := cbdauth.Claims{
		Issuer:     "tool.example.com",
		ClientID:   "client-9",
		AppVersion: "3.2",
		Audience:   cbdauth.Audience,
		IssuedAt:   token.Claims.IssuedAt,
		ExpiresAt:  token.Claims.IssuedAt + 120,
	}
	if token.Claims != want || token.KeyID != "key-7" {
		t.Fatalf("token = %#v, want claims %#v", token, want)
	}
}

func TestRun_DefaultsGenerateClientID(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"key-1", "s3cret"}, &stdout, &stderr); code != 0 {
		t.Fatalf("run() = %d, stderr = %s", code, stderr.String())
	}
	token, err := cbdauth.Verify(strings.TrimSpace(stdout.String()), "s3cret", time.Now())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if token.Claims.ClientID == "" || token.Claims.Issuer != "cbdauth.example.com" || token.Lifetime() != time.Hour {
		t.Fatalf("claims = %#v", token.Claims)
	}
}

func TestRun_Verify(t *testing.T) {
	token, err := cbdauth.Issue("key-1", "s3cret", "client-1", "", "", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"--verify", token.Raw, "s3cret"}, &stdout, &stderr); code != 0 {
		t.Fatalf("run(--verify) = %d, stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "cid:     client-1") {
		t.Fatalf("stdout = %q", stdout.String())
	}

	stdout.Reset()
	stderr.Reset()
	if code := run([]string{"--verify", token.Raw, "key-1", "wrong"}, &stdout, &stderr); code != 1 {
		t.Fatalf("run(--verify wrong secret) = %d, want 1", code)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"key-only"},
		{"-l", "0", "key-1", "s3cret"},
		{"-l", "nope", "key-1", "s3cret"},
	}
	for _, args := range tests {
		var stdout, stderr bytes.Buffer
		if code := run(args, &stdout, &stderr); code == 0 {
			t.Fatalf("run(%q) = 0, want failure", args)
		}
		if stdout.Len() != 0 {
			t.Fatalf("run(%q) wrote a token: %q", args, stdout.String())
		}
	}
}
