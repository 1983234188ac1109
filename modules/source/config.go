package source

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"

	"github.com/zachfi/icesource/pkg/icecast"
)

const (
	defaultInput       = "-"
	defaultChunkSize   = 4096
	defaultDialTimeout = 10 * time.Second

	// maxChunkSize bounds a single buffer handed to the client.
	maxChunkSize = 1024 * 1024
)

type Config struct {
	IP          string        `yaml:"ip,omitempty"`
	Port        int           `yaml:"port,omitempty"`
	Password    string        `yaml:"password,omitempty"`
	Mount       string        `yaml:"mount,omitempty"`
	ContentType string        `yaml:"content-type,omitempty"` // inferred from the first input when empty
	DebugFile   string        `yaml:"debug-file,omitempty"`   // mirror of every buffer sent
	DialTimeout time.Duration `yaml:"dial-timeout,omitempty"`

	Input     string `yaml:"input,omitempty"`      // media file, .m3u/.pls playlist, or "-" for stdin
	ChunkSize int    `yaml:"chunk-size,omitempty"` // bytes per buffer
	RateLimit int    `yaml:"rate-limit,omitempty"` // bytes per second, 0 disables pacing
	AlignMP3  bool   `yaml:"align-mp3,omitempty"`  // drop bytes before the first MPEG frame of each file
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.IP, util.PrefixConfig(prefix, "ip"), icecast.DefaultHost, "Address or host name of the icecast server")
	f.IntVar(&cfg.Port, util.PrefixConfig(prefix, "port"), icecast.DefaultPort, "Source port of the icecast server")
	f.StringVar(&cfg.Password, util.PrefixConfig(prefix, "password"), icecast.DefaultPassword, "Source password")
	f.StringVar(&cfg.Mount, util.PrefixConfig(prefix, "mount"), "", "Mountpoint to publish to, without the leading slash")
	f.StringVar(&cfg.ContentType, util.PrefixConfig(prefix, "content-type"), "",
		"Content type of the stream: audio/mpeg, application/ogg or video/webm. Inferred from the input file extension when empty.")
	f.StringVar(&cfg.DebugFile, util.PrefixConfig(prefix, "debug-file"), "", "Also write every outgoing buffer to this file")
	f.DurationVar(&cfg.DialTimeout, util.PrefixConfig(prefix, "dial-timeout"), defaultDialTimeout, "Timeout for resolving and connecting to the server")
	f.StringVar(&cfg.Input, util.PrefixConfig(prefix, "input"), defaultInput, "Media file or playlist to stream, - for stdin")
	f.IntVar(&cfg.ChunkSize, util.PrefixConfig(prefix, "chunk-size"), defaultChunkSize, "Bytes read from the input per buffer")
	f.IntVar(&cfg.RateLimit, util.PrefixConfig(prefix, "rate-limit"), 0,
		"Maximum bytes per second sent to the server. Set it to the stream bitrate/8 when sending files faster than realtime would overrun the server.")
	f.BoolVar(&cfg.AlignMP3, util.PrefixConfig(prefix, "align-mp3"), true, "Skip leading bytes before the first MPEG audio frame of each audio/mpeg input")
}

func (cfg *Config) clientConfig(contentType string) icecast.Config {
	return icecast.Config{
		Host:        cfg.IP,
		Port:        cfg.Port,
		Password:    cfg.Password,
		Mount:       cfg.Mount,
		ContentType: contentType,
		DebugFile:   cfg.DebugFile,
		DialTimeout: cfg.DialTimeout,
	}
}
