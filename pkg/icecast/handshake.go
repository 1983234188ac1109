package icecast

import (
	"strings"
)

// Content types accepted by the source handshake.
const (
	ContentTypeMPEG = "audio/mpeg"
	ContentTypeOgg  = "application/ogg"
	ContentTypeWebM = "video/webm"
)

// SupportedContentType reports whether ct may be declared in a handshake.
func SupportedContentType(ct string) bool {
	switch ct {
	case ContentTypeMPEG, ContentTypeOgg, ContentTypeWebM:
		return true
	}
	return false
}

// BuildHandshake renders the SOURCE request header block, terminated by an
// empty line. The mount is inserted verbatim, without URL escaping.
//
// Values carrying CR or LF would inject extra header lines and are rejected.
func BuildHandshake(mount, contentType, password string) ([]byte, error) {
	if !SupportedContentType(contentType) {
		return nil, invalidConfig(ErrUnsupportedContentType, "%q", contentType)
	}
	if strings.ContainsAny(mount, "\r\n") {
		return nil, invalidConfig(nil, "mount contains a line break")
	}
	if strings.ContainsAny(password, "\r\n") {
		return nil, invalidConfig(nil, "password contains a line break")
	}

	var b strings.Builder
	b.WriteString("SOURCE /")
	b.WriteString(mount)
	b.WriteString(" ICE/1.0\r\n")
	b.WriteString("content-type: ")
	b.WriteString(contentType)
	b.WriteString("\r\n")
	b.WriteString("Authorization: Basic ")
	b.WriteString(BasicAuth(password))
	b.WriteString("\r\n")
	b.WriteString("\r\n")

	return []byte(b.String()), nil
}
