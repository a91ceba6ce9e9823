package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// echoItemsHandler отвечает числом позиций в полученном теле заказа.
func echoItemsHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]int{"items": len(req.Items)})
}

func gzipBytes(t *testing.T, s string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(s)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	const orderBody = `{"customer":{"name":"ACME"},"items":[{"productName":"Pipe"},{"productName":"Elbow"}]}`

	type want struct {
		statusCode      int
		contentEncoding string
		vary            string
		body            string
	}

	tests := []struct {
		name           string
		compressBody   bool
		rawBody        string
		acceptEncoding string
		want           want
	}{
		{
			name:           "compressed response",
			rawBody:        orderBody,
			acceptEncoding: "gzip, deflate",
			want: want{
				statusCode:      http.StatusCreated,
				contentEncoding: "gzip",
				vary:            "Accept-Encoding",
				body:            `{"items":2}`,
			},
		},
		{
			name:    "plain response",
			rawBody: orderBody,
			want: want{
				statusCode: http.StatusCreated,
				body:       `{"items":2}`,
			},
		},
		{
			name:           "compressed request and response",
			compressBody:   true,
			rawBody:        orderBody,
			acceptEncoding: "gzip",
			want: want{
				statusCode:      http.StatusCreated,
				contentEncoding: "gzip",
				vary:            "Accept-Encoding",
				body:            `{"items":2}`,
			},
		},
		{
			name:         "compressed request only",
			compressBody: true,
			rawBody:      `{"items":[]}`,
			want: want{
				statusCode: http.StatusCreated,
				body:       `{"items":0}`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(tt.rawBody)
			if tt.compressBody {
				body = gzipBytes(t, tt.rawBody)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/orders", body)
			req.Header.Set("Content-Type", "application/json")
			if tt.compressBody {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(echoItemsHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.want.statusCode {
				t.Fatalf("status: got %d want %d", res.StatusCode, tt.want.statusCode)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.want.contentEncoding {
				t.Fatalf("content-encoding: got %q want %q", ce, tt.want.contentEncoding)
			}
			if v := res.Header.Get("Vary"); v != tt.want.vary {
				t.Fatalf("vary: got %q want %q", v, tt.want.vary)
			}

			var reader io.Reader = res.Body
			if tt.want.contentEncoding == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("new gzip reader: %v", err)
				}
				defer gr.Close()
				reader = gr
			}
			got, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}

			if strings.TrimSpace(string(got)) != tt.want.body {
				t.Fatalf("body: got %q want %q", got, tt.want.body)
			}
		})
	}
}

func TestGzipMiddleware_InvalidRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoItemsHandler)).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want %d", w.Code, http.StatusBadRequest)
	}
}
