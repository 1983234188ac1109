package app

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/grafana/dskit/flagext"
	"github.com/grafana/dskit/server"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/zachfi/zkit/pkg/tracing"

	"github.com/zachfi/icesource/modules/source"
)

type Config struct {
	Target   string         `yaml:"target"`
	LogLevel string         `yaml:"log_level,omitempty"`
	Tracing  tracing.Config `yaml:"tracing,omitempty"`
	Server   server.Config  `yaml:"server,omitempty"`
	Source   source.Config  `yaml:"source,omitempty"`
}

// LoadFile overlays the YAML file at path onto c. Fields the file does not
// set keep their current values, so flag defaults should be applied first.
func (c *Config) LoadFile(file string) error {
	filename, _ := filepath.Abs(file)

	if err := loadYamlFile(filename, c); err != nil {
		return errors.Wrapf(err, "failed to load config file %s", file)
	}

	return nil
}

// loadYamlFile strictly unmarshals a YAML file into the received interface{} or returns an error.
func loadYamlFile(filename string, d interface{}) error {
	yamlFile, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.UnmarshalStrict(yamlFile, d)
}

func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	flagext.DefaultValues(&c.Server)
	f.IntVar(&c.Server.HTTPListenPort, "server.http-listen-port", 3030, "HTTP server listen port.")
	f.IntVar(&c.Server.GRPCListenPort, "server.grpc-listen-port", 9095, "gRPC server listen port.")

	f.StringVar(&c.Target, "target", All, "Module to run.")
	f.StringVar(&c.LogLevel, "log.level", "info", "Log level: debug, info, warn or error.")

	c.Tracing.RegisterFlagsAndApplyDefaults("tracing", f)
	c.Source.RegisterFlagsAndApplyDefaults("source", f)
}
