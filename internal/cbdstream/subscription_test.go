package cbdstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestSubscribe_SendsNetworkIDs(t *testing.T) {
	var gotAuth, gotContentType, gotMethod string
	var gotBody map[string][]string
	client := Client{HTTP: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode subscribe payload: %v", err)
		}
		return statusResponse(r, http.StatusNoContent, ""), nil
	})}}

	err := client.Subscribe(context.Background(), "https://cbd.test/api/v2/subscription", "tok-1", []string{"N1", " N2 "})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if gotMethod != http.MethodPost || gotAuth != "Bearer tok-1" || gotContentType != "application/json" {
		t.Fatalf("method=%q auth=%q content-type=%q", gotMethod, gotAuth, gotContentType)
	}
	ids := gotBody["network-ids"]
	if len(ids) != 2 || ids[0] != "N1" || ids[1] != "N2" {
		t.Fatalf("network-ids = %v, want [N1 N2]", ids)
	}
}

func TestSubscribe_EmptyIDsRejectedWithoutIO(t *testing.T) {
	client := Client{HTTP: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request to %s", r.URL)
		return nil, nil
	})}}
	for _, ids := range [][]string{nil, {}, {" ", ""}} {
		err := client.Subscribe(context.Background(), "https://cbd.test/api/v2/subscription", "tok", ids)
		if !errors.Is(err, ErrNoNetworks) {
			t.Fatalf("Subscribe(%q) err = %v, want ErrNoNetworks", ids, err)
		}
	}
}

func TestSubscribe_NonNoContentIsError(t *testing.T) {
	tests := []struct {
		name        string
		code        int
		contentType string
		body        string
		wantPayload string
	}{
		{name: "json error payload", code: http.StatusBadRequest, contentType: "application/json; charset=utf-8", body: `{"code":4000,"message":"bad network id"}`, wantPayload: `"message": "bad network id"`},
		{name: "plain body ignored", code: http.StatusInternalServerError, contentType: "text/plain", body: "oops"},
		{name: "200 is not success", code: http.StatusOK, contentType: "application/json", body: `{}`, wantPayload: "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := Client{HTTP: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				resp := statusResponse(r, tt.code, tt.body)
				resp.Header.Set("Content-Type", tt.contentType)
				return resp, nil
			})}}
			err := client.Subscribe(context.Background(), "https://cbd.test/api/v2/subscription", "tok", []string{"N1"})
			var subErr *SubscriptionError
			if !errors.As(err, &subErr) {
				t.Fatalf("Subscribe() err = %v (%T), want *SubscriptionError", err, err)
			}
			if subErr.StatusCode != tt.code {
				t.Fatalf("status code = %d, want %d", subErr.StatusCode, tt.code)
			}
			if tt.wantPayload == "" && subErr.Payload != "" {
				t.Fatalf("payload = %q, want empty", subErr.Payload)
			}
			if !strings.Contains(subErr.Payload, tt.wantPayload) {
				t.Fatalf("payload = %q, want to contain %q", subErr.Payload, tt.wantPayload)
			}
		})
	}
}

func TestSubscribe_TransportFailure(t *testing.T) {
	client := Client{HTTP: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, io.ErrUnexpectedEOF
	})}}
	err := client.Subscribe(context.Background(), "https://cbd.test/api/v2/subscription", "tok", []string{"N1"})
	var subErr *SubscriptionError
	if !errors.As(err, &subErr) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Subscribe() err = %v, want *SubscriptionError wrapping io.ErrUnexpectedEOF", err)
	}
}
