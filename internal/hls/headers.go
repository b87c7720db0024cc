package hls

import (
	"log"
	"net/http"
	"strings"
)

// tokenByte reports whether b is a valid RFC 7230 "token" character, the
// character class HTTP header field names are restricted to.
func tokenByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	switch b {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !tokenByte(name[i]) {
			return false
		}
	}
	return true
}

func validHeaderValue(value string) bool {
	return !strings.ContainsAny(value, "\r\n")
}

// ApplyHeaders sets the caller-supplied header bundle on req, skipping any
// individually malformed name/value pair with a warning rather than
// failing the whole request, per spec.md §6.
func ApplyHeaders(req *http.Request, headers map[string]string) {
	for name, value := range headers {
		if !validHeaderName(name) || !validHeaderValue(value) {
			log.Printf("[hls] skipping invalid header %q", name)
			continue
		}
		req.Header.Set(name, value)
	}
}
