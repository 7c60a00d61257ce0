package clientip

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRealClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	assert.Equal(t, "203.0.113.7", RealClientIP(r))
	assert.Equal(t, "otp:203.0.113.7", Key("otp", r))

	r.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", RealClientIP(r))

	r.RemoteAddr = "unix-socket"
	assert.Equal(t, "unix-socket", RealClientIP(r))
}
