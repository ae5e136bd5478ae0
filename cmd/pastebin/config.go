package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Mokuzzai/pastebin/server"
	"github.com/rogpeppe/rjson"
)

type config struct {
	Address      string `json:"address"`
	Strategy     string `json:"strategy"`
	Decoding     string `json:"decoding"`
	OnParseError string `json:"on_parse_error"`
	BufferSize   int    `json:"buffer_size"`
	Concurrent   bool   `json:"concurrent"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	AssetsDir    string `json:"assets_dir"`
	Debug        bool   `json:"debug"`
	LogPath      string `json:"log_path"`

	Blobs struct {
		Type string `json:"type"`

		// Properties for "disk" and "bolt" types.
		Path string `json:"path"`

		// Properties for "s3" type.
		Profile   string `json:"profile"`
		Region    string `json:"region"`
		Bucket    string `json:"bucket"`
		Endpoint  string `json:"endpoint"`
		CachePath string `json:"cache_path"`

		Compression string `json:"compression"`
	} `json:"blobs"`

	Index struct {
		Type string `json:"type"`

		// Properties for "bolt" and "sqlite" types.
		Path string `json:"path"`

		// Properties for "dynamodb" type.
		Profile string `json:"profile"`
		Region  string `json:"region"`
		Table   string `json:"table"`
	} `json:"index"`
}

func loadConfig(pathname string) (*config, error) {
	f, err := os.Open(pathname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var c *config
	err = rjson.NewDecoder(f).Decode(&c)
	if err == nil && c == nil {
		c = &config{}
	}
	return c, err
}

func (c *config) applyDefaultsForMissingProperties() {
	if c.Address == "" {
		c.Address = server.DefaultAddress
	}
	if c.Strategy == "" {
		c.Strategy = "random"
	}
	if c.Decoding == "" {
		c.Decoding = "strict"
	}
	if c.OnParseError == "" {
		c.OnParseError = "close"
	}
	if c.BufferSize <= 0 {
		c.BufferSize = server.DefaultBufferSize
	}
	if c.Blobs.Type == "" {
		c.Blobs.Type = "disk"
	}
	if c.Blobs.Path == "" {
		switch c.Blobs.Type {
		case "disk":
			c.Blobs.Path = "$HOME/lib/pastebin/uploads"
		case "bolt":
			c.Blobs.Path = "$HOME/lib/pastebin/pastebin.db"
		}
	}
	if c.Index.Type == "" {
		c.Index.Type = "sqlite"
	}
	if c.Index.Path == "" {
		switch c.Index.Type {
		case "sqlite":
			c.Index.Path = "$HOME/lib/pastebin/posts.db"
		case "bolt":
			c.Index.Path = "$HOME/lib/pastebin/pastebin.db"
		}
	}
}

func (c *config) serverOptions() ([]server.Option, error) {
	opts := []server.Option{
		server.WithAddress(c.Address),
		server.WithBufferSize(c.BufferSize),
		server.WithConcurrentConnections(c.Concurrent),
	}
	switch c.Decoding {
	case "strict":
		opts = append(opts, server.WithDecoding(server.DecodeStrict))
	case "lossy":
		opts = append(opts, server.WithDecoding(server.DecodeLossy))
	default:
		return nil, fmt.Errorf("%q: unknown decoding, want strict or lossy", c.Decoding)
	}
	switch c.OnParseError {
	case "close":
		opts = append(opts, server.WithParseErrorPolicy(server.OnParseErrorClose))
	case "respond":
		opts = append(opts, server.WithParseErrorPolicy(server.OnParseErrorRespond))
	default:
		return nil, fmt.Errorf("%q: unknown parse error policy, want close or respond", c.OnParseError)
	}
	if c.ReadTimeout != "" {
		d, err := time.ParseDuration(c.ReadTimeout)
		if err != nil {
			return nil, fmt.Errorf("read_timeout: %w", err)
		}
		opts = append(opts, server.WithReadTimeout(d))
	}
	if c.WriteTimeout != "" {
		d, err := time.ParseDuration(c.WriteTimeout)
		if err != nil {
			return nil, fmt.Errorf("write_timeout: %w", err)
		}
		opts = append(opts, server.WithWriteTimeout(d))
	}
	if c.AssetsDir != "" {
		opts = append(opts, server.WithAssets(server.NewDirAssets(os.ExpandEnv(c.AssetsDir))))
	}
	return opts, nil
}
