package source

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zachfi/icesource/pkg/icecast"
)

// ingest accepts a single source connection and records everything it reads.
type ingest struct {
	ln       net.Listener
	received chan []byte
}

func newIngest(t *testing.T) *ingest {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	in := &ingest{ln: ln, received: make(chan []byte, 1)}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			in.received <- nil
			return
		}
		defer conn.Close()
		b, _ := io.ReadAll(conn)
		in.received <- b
	}()
	return in
}

func (in *ingest) port() int {
	return in.ln.Addr().(*net.TCPAddr).Port
}

func (in *ingest) wait(t *testing.T) []byte {
	t.Helper()
	select {
	case b := <-in.received:
		return b
	case <-time.After(10 * time.Second):
		t.Fatal("ingest never finished reading")
	}
	return nil
}

func testLogger() slog.Logger {
	return *slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(port int, input string) Config {
	return Config{
		IP:          "127.0.0.1",
		Port:        port,
		Password:    "hackme",
		Mount:       "live",
		DialTimeout: 5 * time.Second,
		Input:       input,
		ChunkSize:   100,
		AlignMP3:    true,
	}
}

func mp3Data(n int) []byte {
	b := make([]byte, n)
	b[0], b[1] = 0xFF, 0xFB
	for i := 2; i < n; i++ {
		b[i] = byte(i % 200)
	}
	return b
}

func runToCompletion(t *testing.T, s *Source) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, s.StartAsync(ctx))
	err := s.AwaitTerminated(ctx)
	require.Error(t, err)
	require.ErrorIs(t, s.FailureCase(), modules.ErrStopProcess)
}

func TestSourceStreamsFile(t *testing.T) {
	in := newIngest(t)
	dir := t.TempDir()

	audio := mp3Data(1234)
	name := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(name, append(id3Tag(coverArt(256), false), audio...), 0o600))

	debug := filepath.Join(dir, "mirror.mp3")
	cfg := testConfig(in.port(), name)
	cfg.DebugFile = debug

	reg := prometheus.NewRegistry()
	s, err := New(cfg, testLogger(), reg)
	require.NoError(t, err)

	runToCompletion(t, s)

	header, err := icecast.BuildHandshake("live", icecast.ContentTypeMPEG, "hackme")
	require.NoError(t, err)
	assert.Equal(t, append(header, audio...), in.wait(t))

	mirrored, err := os.ReadFile(debug)
	require.NoError(t, err)
	assert.Equal(t, audio, mirrored)

	assert.Equal(t, float64(len(audio)), testutil.ToFloat64(s.metrics.bytesSent))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.inputsStarted))
	assert.Equal(t, float64(0), testutil.ToFloat64(s.metrics.streaming))
	assert.Equal(t, icecast.StateStopped, s.client.State())
}

func TestSourceStreamsPlaylist(t *testing.T) {
	in := newIngest(t)
	dir := t.TempDir()

	first, second := mp3Data(300), mp3Data(450)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.mp3"), first, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.ogg"), []byte("OggS not for this stream"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.mp3"), second, 0o600))

	list := filepath.Join(dir, "list.m3u")
	require.NoError(t, os.WriteFile(list, []byte("#EXTM3U\none.mp3\nskip.ogg\ntwo.mp3\n"), 0o600))

	s, err := New(testConfig(in.port(), list), testLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	runToCompletion(t, s)

	header, err := icecast.BuildHandshake("live", icecast.ContentTypeMPEG, "hackme")
	require.NoError(t, err)

	var want bytes.Buffer
	want.Write(header)
	want.Write(first)
	want.Write(second)
	assert.Equal(t, want.Bytes(), in.wait(t))
	assert.Equal(t, float64(2), testutil.ToFloat64(s.metrics.inputsStarted))
}

func TestSourceExplicitContentType(t *testing.T) {
	in := newIngest(t)
	dir := t.TempDir()

	data := []byte("not really webm, sent untouched")
	name := filepath.Join(dir, "capture.bin")
	require.NoError(t, os.WriteFile(name, data, 0o600))

	cfg := testConfig(in.port(), name)
	cfg.ContentType = icecast.ContentTypeWebM

	s, err := New(cfg, testLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	runToCompletion(t, s)

	got := in.wait(t)
	assert.Contains(t, string(got), "content-type: video/webm\r\n")
	assert.True(t, bytes.HasSuffix(got, data))
}

func TestSourceUnknownContentType(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(name, []byte("hello"), 0o600))

	s, err := New(testConfig(8000, name), testLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	err = services.StartAndAwaitRunning(context.Background(), s)
	require.Error(t, err)
	require.ErrorIs(t, s.FailureCase(), icecast.ErrUnsupportedContentType)
}

func TestSourceInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(name, mp3Data(10), 0o600))

	cfg := testConfig(70000, name)
	s, err := New(cfg, testLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	require.Error(t, services.StartAndAwaitRunning(context.Background(), s))
	require.ErrorIs(t, s.FailureCase(), icecast.ErrInvalidConfig)

	_, err = New(Config{ChunkSize: maxChunkSize + 1}, testLogger(), nil)
	require.Error(t, err)
	_, err = New(Config{RateLimit: -1}, testLogger(), nil)
	require.Error(t, err)
}

func TestSourceConnectionFailed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	dir := t.TempDir()
	name := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(name, mp3Data(500), 0o600))

	s, err := New(testConfig(port, name), testLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.StartAsync(ctx))
	require.Error(t, s.AwaitTerminated(ctx))

	require.ErrorIs(t, s.FailureCase(), icecast.ErrConnectionFailed)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.sendErrors.WithLabelValues("connection_failed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(s.metrics.bytesSent))
}

func TestSourceStopWhileStreaming(t *testing.T) {
	in := newIngest(t)
	dir := t.TempDir()

	name := filepath.Join(dir, "long.mp3")
	require.NoError(t, os.WriteFile(name, mp3Data(64*1024), 0o600))

	cfg := testConfig(in.port(), name)
	cfg.RateLimit = 1000

	s, err := New(cfg, testLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, services.StartAndAwaitRunning(ctx, s))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.buffersSent) > 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, services.StopAndAwaitTerminated(ctx, s))
	assert.Nil(t, s.FailureCase())

	got := in.wait(t)
	assert.Less(t, len(got), 64*1024)
	assert.Equal(t, icecast.StateStopped, s.client.State())
}
