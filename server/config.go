package main

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"sigs.k8s.io/yaml"
)

type Config struct {
	Listen        string `json:"listen"`
	DataDir       string `json:"dataDir"`
	APIListen     string `json:"apiListen"`
	MaxBufferSize int64  `json:"maxBufferSize"`
	MinChunkSize  int    `json:"minChunkSize"`
	MaxChunkSize  int    `json:"maxChunkSize"`
	MaxLineLength int    `json:"maxLineLength"`
	PushQueueSize int    `json:"pushQueueSize"`
	PasswordCost  int    `json:"passwordCost"`
	MaxSendKiBps  int    `json:"maxSendKiBps"`
	MaxRecvKiBps  int    `json:"maxRecvKiBps"`
}

func DefaultConfig() Config {
	return Config{
		Listen:        ":8000",
		DataDir:       "server_data",
		APIListen:     "127.0.0.1:8080",
		MaxBufferSize: 10 << 20,
		MinChunkSize:  50 << 10,
		MaxChunkSize:  100 << 10,
		MaxLineLength: 64 << 10,
		PushQueueSize: 64,
		PasswordCost:  bcrypt.DefaultCost,
	}
}

// LoadConfig reads a YAML file on top of the defaults. Keys missing from
// the file keep their default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Listen == "":
		return errors.New("listen address must be set")
	case c.DataDir == "":
		return errors.New("data directory must be set")
	case c.MaxBufferSize <= 0:
		return errors.New("maxBufferSize must be positive")
	case c.MinChunkSize <= 0 || c.MaxChunkSize <= 0:
		return errors.New("chunk sizes must be positive")
	case c.MinChunkSize > c.MaxChunkSize:
		return errors.Errorf("minChunkSize %d exceeds maxChunkSize %d", c.MinChunkSize, c.MaxChunkSize)
	case c.MaxLineLength <= 0:
		return errors.New("maxLineLength must be positive")
	case c.PushQueueSize <= 0:
		return errors.New("pushQueueSize must be positive")
	case c.PasswordCost < bcrypt.MinCost || c.PasswordCost > bcrypt.MaxCost:
		return errors.Errorf("passwordCost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}
