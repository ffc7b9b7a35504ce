package auth

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basicHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func TestBasicExtractor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   Credentials
		wantOK bool
	}{
		{
			name:   "valid pair",
			header: basicHeader("alice", "s3cret"),
			want:   Credentials{Username: "alice", Password: "s3cret"},
			wantOK: true,
		},
		{
			name:   "password containing colons",
			header: basicHeader("alice", "pa:ss:word"),
			want:   Credentials{Username: "alice", Password: "pa:ss:word"},
			wantOK: true,
		},
		{
			name:   "empty password",
			header: basicHeader("alice", ""),
			want:   Credentials{Username: "alice", Password: ""},
			wantOK: true,
		},
		{
			name:   "case-insensitive scheme",
			header: "basic " + base64.StdEncoding.EncodeToString([]byte("alice:s3cret")),
			want:   Credentials{Username: "alice", Password: "s3cret"},
			wantOK: true,
		},
		{
			name:   "missing header",
			header: "",
			wantOK: false,
		},
		{
			name:   "wrong scheme",
			header: "Bearer abc123",
			wantOK: false,
		},
		{
			name:   "invalid base64",
			header: "Basic !!!not-base64!!!",
			wantOK: false,
		},
		{
			name:   "no colon in payload",
			header: "Basic " + base64.StdEncoding.EncodeToString([]byte("alicelone")),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodPost, "/login", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			got, ok := BasicExtractor{}.Extract(r)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func formRequest(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()

	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestFormExtractor(t *testing.T) {
	t.Parallel()

	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name   string
		fields map[string]string
		want   Credentials
		wantOK bool
	}{
		{
			name:   "valid pair",
			fields: map[string]string{"username": b64("alice"), "password": b64("s3cret")},
			want:   Credentials{Username: "alice", Password: "s3cret"},
			wantOK: true,
		},
		{
			name:   "missing password",
			fields: map[string]string{"username": b64("alice")},
			wantOK: false,
		},
		{
			name:   "missing username",
			fields: map[string]string{"password": b64("s3cret")},
			wantOK: false,
		},
		{
			name:   "invalid base64 username",
			fields: map[string]string{"username": "!!!", "password": b64("s3cret")},
			wantOK: false,
		},
		{
			name:   "invalid base64 password",
			fields: map[string]string{"username": b64("alice"), "password": "!!!"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := FormExtractor{}.Extract(formRequest(t, tt.fields))
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtract_PriorityOrder(t *testing.T) {
	t.Parallel()

	// Both encodings present: the Basic header wins.
	r := formRequest(t, map[string]string{
		"username": base64.StdEncoding.EncodeToString([]byte("form-user")),
		"password": base64.StdEncoding.EncodeToString([]byte("form-pass")),
	})
	r.Header.Set("Authorization", basicHeader("header-user", "header-pass"))

	got, ok := Extract(r, DefaultExtractors())
	require.True(t, ok)
	assert.Equal(t, "header-user", got.Username)
}

func TestExtract_NoCredentials(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	_, ok := Extract(r, DefaultExtractors())
	assert.False(t, ok)
}
