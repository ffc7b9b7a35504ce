package proxy

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upstreamResponse(t *testing.T, contentType, body string, headers map[string]string) *http.Response {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/page", nil)
	ctx := withClientOrigin(r.Context(), "https", "proxy.example.com")
	r = r.WithContext(ctx)

	resp := &http.Response{
		StatusCode:    http.StatusOK,
		Header:        http.Header{},
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
		Request:       r,
	}
	if contentType != "" {
		resp.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

func TestRewriteLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		location string
		want     string
	}{
		{
			name:     "absolute backend url",
			location: "https://backend-internal/x?y=1",
			want:     "https://proxy.example.com/x?y=1",
		},
		{
			name:     "absolute with port and fragment",
			location: "http://backend:9000/path#section",
			want:     "https://proxy.example.com/path#section",
		},
		{
			name:     "relative path untouched",
			location: "/login?error=1",
			want:     "/login?error=1",
		},
		{
			name:     "malformed value untouched",
			location: "http://%zz-bad/",
			want:     "http://%zz-bad/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp := upstreamResponse(t, "text/plain", "", map[string]string{"Location": tt.location})
			require.NoError(t, NewRewriter().ModifyResponse(resp))
			assert.Equal(t, tt.want, resp.Header.Get("Location"))
		})
	}
}

func TestInjectFragment(t *testing.T) {
	t.Parallel()

	rw := NewRewriter(WithFragment("<div>X</div>"))

	resp := upstreamResponse(t, "text/html; charset=utf-8",
		"<html><body><p>hi</p></body></html>", nil)
	require.NoError(t, rw.ModifyResponse(resp))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "<html><body><p>hi</p><div>X</div></body></html>", string(body))
	assert.Equal(t, int64(-1), resp.ContentLength)
	assert.Empty(t, resp.Header.Get("Content-Length"))
}

func TestInjectFragment_UppercaseTag(t *testing.T) {
	t.Parallel()

	rw := NewRewriter(WithFragment("<div>X</div>"))

	resp := upstreamResponse(t, "text/html", "<HTML><BODY>hi</BODY></HTML>", nil)
	require.NoError(t, rw.ModifyResponse(resp))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<div>X</div></BODY>")
}

func TestInjectFragment_NoBodyTag(t *testing.T) {
	t.Parallel()

	rw := NewRewriter(WithFragment("<div>X</div>"))

	resp := upstreamResponse(t, "text/html", "<p>partial</p>", nil)
	require.NoError(t, rw.ModifyResponse(resp))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "<p>partial</p>", string(body))
}

func TestModifyResponse_NonHTMLUntouched(t *testing.T) {
	t.Parallel()

	const payload = "binary </body> data"
	resp := upstreamResponse(t, "application/octet-stream", payload, nil)
	require.NoError(t, NewRewriter().ModifyResponse(resp))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
	assert.Equal(t, int64(len(payload)), resp.ContentLength)
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"TEXT/HTML", true},
		{"application/xhtml+xml", false},
		{"application/json", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isHTML(tt.contentType), tt.contentType)
	}
}

func TestServeMaintenance(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	ServeMaintenance(rec)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "Temporarily unavailable")
}
