// Package icecast pushes a live media stream to an Icecast/SHOUTcast server
// using the SOURCE protocol.
//
// A Client connects lazily: the first call to Send resolves the server,
// opens a TCP connection and writes the handshake
//
//	SOURCE /<mount> ICE/1.0
//	content-type: <type>
//	Authorization: Basic <base64("source:"+password)>
//
// after which every buffer is written to the socket unframed. There is no
// reconnect and no retry: a failed client must be stopped and replaced.
package icecast
