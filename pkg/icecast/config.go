package icecast

import (
	"strings"
	"time"
	"unicode"
)

const (
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 8000
	DefaultPassword = "hackme"
)

// Config describes one source connection. It is copied by Start and never
// changed afterwards.
type Config struct {
	Host     string
	Port     int
	Password string
	Mount    string

	// ContentType is optional. When empty it is taken from the first Send.
	ContentType string

	// DebugFile, when set, receives an unmodified copy of every buffer.
	DebugFile string

	// DialTimeout bounds resolving and connecting. Zero leaves it to the
	// context passed to Send.
	DialTimeout time.Duration
}

// Validate checks the fields that can be checked without touching the
// network.
func (c Config) Validate() error {
	if c.Host == "" {
		return invalidConfig(nil, "host is empty")
	}
	if strings.IndexFunc(c.Host, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return invalidConfig(nil, "host %q is not a valid address", c.Host)
	}
	if c.Port < 1 || c.Port > 65535 {
		return invalidConfig(nil, "port %d out of range 1-65535", c.Port)
	}
	if c.Password == "" {
		return invalidConfig(nil, "password is empty")
	}
	if strings.ContainsAny(c.Password, "\r\n") {
		return invalidConfig(nil, "password contains a line break")
	}
	if strings.ContainsAny(c.Mount, "\r\n") {
		return invalidConfig(nil, "mount contains a line break")
	}
	if c.ContentType != "" && !SupportedContentType(c.ContentType) {
		return invalidConfig(ErrUnsupportedContentType, "%q", c.ContentType)
	}
	if c.DialTimeout < 0 {
		return invalidConfig(nil, "dial timeout is negative")
	}
	return nil
}
