package source

import "bytes"

// mp3SyncWindow is how far past any ID3v2 tag a frame sync is searched for
// before the data is sent as is.
const mp3SyncWindow = 8192

const id3HeaderSize = 10

var id3Magic = []byte("ID3")

// findMP3FrameSync returns the offset of the first MPEG audio frame header,
// an 0xFF byte followed by a byte whose top three bits are set, or -1.
func findMP3FrameSync(data []byte) int {
	for i := 0; i+1 < len(data); i++ {
		if data[i] == 0xFF && data[i+1]&0xE0 == 0xE0 {
			return i
		}
	}
	return -1
}

// id3TagSize returns the full length of the ID3v2 tag described by the
// 10 byte header h, footer included, or 0 if h is not a valid tag header.
func id3TagSize(h []byte) int {
	if len(h) < id3HeaderSize || !bytes.HasPrefix(h, id3Magic) {
		return 0
	}
	if h[3] == 0xFF || h[4] == 0xFF {
		return 0
	}

	// syncsafe: seven bits per byte
	size := 0
	for _, b := range h[6:10] {
		if b&0x80 != 0 {
			return 0
		}
		size = size<<7 | int(b)
	}

	size += id3HeaderSize
	if h[5]&0x10 != 0 {
		size += id3HeaderSize
	}
	return size
}

// mp3Aligner drops a leading ID3v2 tag and any bytes ahead of the first
// frame header of a stream.
type mp3Aligner struct {
	pending []byte
	// bytes of the tag still to be dropped
	skip       int
	tagChecked bool
	done       bool
}

// push feeds b and returns the bytes that are ready to be sent.
func (a *mp3Aligner) push(b []byte) []byte {
	if a.done {
		return b
	}

	a.pending = append(a.pending, b...)

	if !a.tagChecked {
		if len(a.pending) < id3HeaderSize && bytes.HasPrefix(id3Magic, a.pending[:min(len(a.pending), len(id3Magic))]) {
			return nil
		}
		a.tagChecked = true
		a.skip = id3TagSize(a.pending)
	}

	if a.skip > 0 {
		n := min(a.skip, len(a.pending))
		a.pending = a.pending[n:]
		a.skip -= n
		if a.skip > 0 {
			return nil
		}
	}

	if pos := findMP3FrameSync(a.pending); pos >= 0 {
		return a.release(a.pending[pos:])
	}
	if len(a.pending) > mp3SyncWindow {
		return a.release(a.pending)
	}
	return nil
}

// flush returns whatever is still held back, for inputs shorter than the
// search window.
func (a *mp3Aligner) flush() []byte {
	if a.done {
		return nil
	}
	return a.release(a.pending)
}

func (a *mp3Aligner) release(b []byte) []byte {
	a.done = true
	a.pending = nil
	return b
}
