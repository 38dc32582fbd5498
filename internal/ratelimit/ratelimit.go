// Package ratelimit classifies responses from the bank data API and turns a
// rate-limit wait into Spanish text.
package ratelimit

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Response is the narrow view of an HTTP reply that classification needs.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Wait is the outcome for a rate-limited response.
type Wait struct {
	Seconds int
	Text    string
}

func (w Wait) Duration() time.Duration { return time.Duration(w.Seconds) * time.Second }

var secondsPattern = regexp.MustCompile(`(\d+)\s*seconds`)

// Check reports whether r is a 429 and how long to wait.
//
// The wait comes from the "detail" message of a JSON body ("... 90 seconds"),
// then the Retry-After header (seconds or HTTP date), then zero.
func Check(r Response) (Wait, bool) {
	return checkAt(r, time.Now())
}

func checkAt(r Response, now time.Time) (Wait, bool) {
	if r.StatusCode != http.StatusTooManyRequests {
		return Wait{}, false
	}
	secs, ok := fromBody(r.Body)
	if !ok {
		secs, ok = fromRetryAfter(r.Header.Get("Retry-After"), now)
	}
	if !ok {
		secs = 0
	}
	return Wait{Seconds: secs, Text: Describe(secs)}, true
}

func fromBody(body []byte) (int, bool) {
	var payload struct {
		Detail any `json:"detail"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return 0, false
	}
	detail, ok := payload.Detail.(string)
	if !ok {
		return 0, false
	}
	m := secondsPattern.FindStringSubmatch(detail)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func fromRetryAfter(v string, now time.Time) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return n, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return int(d.Round(time.Second) / time.Second), true
		}
		return 0, true
	}
	return 0, false
}

// Describe renders seconds as "1 hora, 1 minuto y 1 segundo". Zero parts are
// left out; all zero reads "menos de un segundo".
func Describe(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	days := seconds / 86400
	hours := seconds % 86400 / 3600
	minutes := seconds % 3600 / 60
	secs := seconds % 60

	var parts []string
	parts = appendUnit(parts, days, "día", "días")
	parts = appendUnit(parts, hours, "hora", "horas")
	parts = appendUnit(parts, minutes, "minuto", "minutos")
	parts = appendUnit(parts, secs, "segundo", "segundos")
	if len(parts) == 0 {
		return "menos de un segundo"
	}
	return JoinSpanish(parts)
}

func appendUnit(parts []string, n int, one, many string) []string {
	switch {
	case n == 1:
		return append(parts, "1 "+one)
	case n > 1:
		return append(parts, strconv.Itoa(n)+" "+many)
	}
	return parts
}

// JoinSpanish joins with ", " and puts " y " before the last element.
func JoinSpanish(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " y " + parts[len(parts)-1]
}
