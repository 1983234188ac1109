package icecast

import "encoding/base64"

// Encode returns the standard padded Base64 form of raw. A nil slice is
// rejected with ErrInvalidInput; an empty one encodes to "".
func Encode(raw []byte) (string, error) {
	if raw == nil {
		return "", ErrInvalidInput
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// BasicAuth returns the Authorization token for a source password.
func BasicAuth(password string) string {
	token, _ := Encode([]byte("source:" + password))
	return token
}
