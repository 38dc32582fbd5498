package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		resp    Response
		limited bool
		secs    int
		text    string
	}{
		{
			name:    "detail in body",
			resp:    Response{StatusCode: 429, Body: []byte(`{"detail":"Request limit exceeded, retry in 90 seconds"}`)},
			limited: true, secs: 90, text: "1 minuto y 30 segundos",
		},
		{
			name: "retry-after header",
			resp: Response{StatusCode: 429, Header: http.Header{"Retry-After": {"3661"}}, Body: []byte("oops")},
			limited: true, secs: 3661, text: "1 hora, 1 minuto y 1 segundo",
		},
		{
			name: "body wins over header",
			resp: Response{
				StatusCode: 429,
				Header:     http.Header{"Retry-After": {"5"}},
				Body:       []byte(`{"detail":"try again in 7 seconds","status_code":429}`),
			},
			limited: true, secs: 7, text: "7 segundos",
		},
		{
			name: "detail without number falls back to header",
			resp: Response{StatusCode: 429, Header: http.Header{"Retry-After": {"60"}}, Body: []byte(`{"detail":"slow down"}`)},
			limited: true, secs: 60, text: "1 minuto",
		},
		{
			name: "http date header",
			resp: Response{StatusCode: 429, Header: http.Header{"Retry-After": {now.Add(2 * time.Hour).Format(http.TimeFormat)}}},
			limited: true, secs: 7200, text: "2 horas",
		},
		{
			name:    "nothing parseable",
			resp:    Response{StatusCode: 429, Header: http.Header{"Retry-After": {"soon"}}},
			limited: true, secs: 0, text: "menos de un segundo",
		},
		{name: "ok", resp: Response{StatusCode: 200, Body: []byte(`{"detail":"90 seconds"}`)}},
		{name: "server error", resp: Response{StatusCode: 503}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, limited := checkAt(tt.resp, now)
			assert.Equal(t, tt.limited, limited)
			assert.Equal(t, tt.secs, w.Seconds)
			assert.Equal(t, tt.text, w.Text)
		})
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := map[int]string{
		0:      "menos de un segundo",
		1:      "1 segundo",
		59:     "59 segundos",
		60:     "1 minuto",
		3600:   "1 hora",
		86400:  "1 día",
		90061:  "1 día, 1 hora, 1 minuto y 1 segundo",
		183600: "2 días y 3 horas",
	}
	for in, want := range tests {
		assert.Equal(t, want, Describe(in), "Describe(%d)", in)
	}
}

func TestWaitDuration(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 90*time.Second, Wait{Seconds: 90}.Duration())
}
