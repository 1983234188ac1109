package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/zachfi/icesource/pkg/icecast"
)

// Source streams the configured input to an icecast mountpoint.
type Source struct {
	services.Service
	cfg     *Config
	logger  *slog.Logger
	metrics *metrics
	tracer  trace.Tracer

	files       []string
	contentType string
	client      *icecast.Client
	limiter     *rate.Limiter
}

var module = "source"

// New creates and returns a new Source.
func New(cfg Config, logger slog.Logger, reg prometheus.Registerer) (*Source, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ChunkSize < 0 || cfg.ChunkSize > maxChunkSize {
		return nil, fmt.Errorf("chunk size %d out of range 1-%d", cfg.ChunkSize, maxChunkSize)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit %d is negative", cfg.RateLimit)
	}
	if cfg.Input == "" {
		cfg.Input = defaultInput
	}

	s := &Source{
		cfg:     &cfg,
		logger:  logger.With("module", module),
		metrics: newMetrics(reg),
		tracer:  otel.Tracer(module),
	}

	s.Service = services.NewBasicService(s.starting, s.running, s.stopping)

	return s, nil
}

func (s *Source) starting(_ context.Context) error {
	files, err := expandInput(s.cfg.Input)
	if err != nil {
		s.logger.Error("error expanding input", "input", s.cfg.Input, "err", err)
		return err
	}

	ct := s.cfg.ContentType
	if ct == "" {
		ct = contentTypeForPath(files[0])
	}
	if ct == "" {
		return fmt.Errorf("unable to infer the content type of %q, set content-type: %w", files[0], icecast.ErrUnsupportedContentType)
	}

	client, err := icecast.Start(s.cfg.clientConfig(ct), icecast.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("invalid source config: %w", err)
	}
	client.ConnectionProblemFunc = func(p icecast.ConnectionProblem) {
		s.metrics.observeProblem(p)
		s.metrics.streaming.Set(0)
		s.logger.Error("connection problem", "code", p.Code, "sent", p.Sent, "size", p.Size, "err", p.Err)
	}

	if s.cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), max(s.cfg.RateLimit, s.cfg.ChunkSize))
	}

	s.files = files
	s.contentType = ct
	s.client = client

	return nil
}

func (s *Source) running(ctx context.Context) error {
	for _, name := range s.files {
		if ctx.Err() != nil {
			return nil
		}

		if ct := contentTypeForPath(name); ct != "" && ct != s.contentType {
			s.logger.Warn("skipping input with a different content type", "input", name, "content_type", ct, "stream_content_type", s.contentType)
			continue
		}

		if err := s.streamFile(ctx, name); err != nil {
			if ctx.Err() != nil && errors.Is(err, icecast.ErrCancelled) {
				return nil
			}
			return err
		}
	}

	s.logger.Info("input exhausted", "bytes_sent", s.client.BytesSent())
	return modules.ErrStopProcess
}

func (s *Source) stopping(_ error) error {
	s.logger.Info("stopping")

	if s.client != nil {
		s.client.Stop()
	}
	s.metrics.streaming.Set(0)

	return nil
}

func (s *Source) streamFile(ctx context.Context, name string) (err error) {
	ctx, span := s.tracer.Start(ctx, "source.streamFile", trace.WithAttributes(
		attribute.String("input", name),
		attribute.String("content_type", s.contentType),
	))
	defer func() {
		if err != nil && !errors.Is(err, icecast.ErrCancelled) {
			s.logger.Error("error streaming input", "input", name, "err", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "error streaming input")
		}
		span.End()
	}()

	r, err := openInput(name)
	if err != nil {
		return err
	}
	defer r.Close()

	// Unblocks a pending Read when the service is stopped.
	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()

	s.logger.Info("streaming input", "input", name, "content_type", s.contentType)
	s.metrics.inputsStarted.Inc()

	var aligner *mp3Aligner
	if s.cfg.AlignMP3 && s.contentType == icecast.ContentTypeMPEG {
		aligner = &mp3Aligner{}
	}

	buf := make([]byte, s.cfg.ChunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if aligner != nil {
				chunk = aligner.push(chunk)
			}
			if err := s.send(ctx, chunk); err != nil {
				return err
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("reading %s: %w", name, icecast.ErrCancelled)
			}
			return fmt.Errorf("error reading %s: %w", name, readErr)
		}
	}

	if aligner != nil {
		return s.send(ctx, aligner.flush())
	}
	return nil
}

func (s *Source) send(ctx context.Context, b []byte) error {
	if len(b) == 0 {
		return nil
	}

	if s.limiter != nil {
		for rest := len(b); rest > 0; {
			n := min(rest, s.limiter.Burst())
			if err := s.limiter.WaitN(ctx, n); err != nil {
				return fmt.Errorf("%w: %v", icecast.ErrCancelled, err)
			}
			rest -= n
		}
	}

	if err := s.client.Send(ctx, b, s.contentType); err != nil {
		s.metrics.sendErrors.WithLabelValues(sendErrorReason(err)).Inc()
		return err
	}

	s.metrics.bytesSent.Add(float64(len(b)))
	s.metrics.buffersSent.Inc()
	s.metrics.streaming.Set(1)
	return nil
}

func openInput(name string) (io.ReadCloser, error) {
	if name == defaultInput {
		return os.Stdin, nil
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("error opening input: %w", err)
	}
	return f, nil
}
