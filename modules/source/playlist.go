package source

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zachfi/icesource/pkg/icecast"
)

const utf8BOM = "\ufeff"

// parsePLS returns the FileN entries of a PLS playlist in file order.
func parsePLS(body io.Reader) ([]string, error) {
	var entries []string

	scanner := bufio.NewScanner(body)
	for first := true; scanner.Scan(); first = false {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, utf8BOM)
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "File") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimPrefix(key, "File") == "" {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			entries = append(entries, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries found in PLS playlist")
	}
	return entries, nil
}

// parseM3U returns the non-comment lines of an M3U playlist.
func parseM3U(body io.Reader) ([]string, error) {
	var entries []string

	scanner := bufio.NewScanner(body)
	for first := true; scanner.Scan(); first = false {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, utf8BOM)
		}
		line = strings.TrimSpace(line)
		// Skip comments, #EXTINF included, and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries found in M3U playlist")
	}
	return entries, nil
}

func isPlaylist(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u", ".m3u8", ".pls":
		return true
	}
	return false
}

// expandInput turns the configured input into the list of media files to
// stream. Playlist entries are resolved relative to the playlist; remote
// entries are rejected since only local media can be pushed.
func expandInput(input string) ([]string, error) {
	if input == "" || input == defaultInput || !isPlaylist(input) {
		return []string{input}, nil
	}

	f, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("failed to open playlist: %w", err)
	}
	defer f.Close()

	var entries []string
	if strings.EqualFold(filepath.Ext(input), ".pls") {
		entries, err = parsePLS(f)
	} else {
		entries, err = parseM3U(f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse playlist %s: %w", input, err)
	}

	dir := filepath.Dir(input)
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(e, "://") {
			return nil, fmt.Errorf("playlist %s: remote entry %q is not supported", input, e)
		}
		if !filepath.IsAbs(e) {
			e = filepath.Join(dir, e)
		}
		files = append(files, e)
	}

	return files, nil
}

// contentTypeForPath infers the stream content type from a file extension.
// It returns "" when the extension is not recognised.
func contentTypeForPath(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3", ".mp2", ".mpga":
		return icecast.ContentTypeMPEG
	case ".ogg", ".oga", ".ogv", ".opus", ".spx":
		return icecast.ContentTypeOgg
	case ".webm":
		return icecast.ContentTypeWebM
	}
	return ""
}
