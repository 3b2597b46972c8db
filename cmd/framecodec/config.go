package main

import (
	ebinary "encoding/binary"
	"fmt"
	"os"
	"strings"

	yaml "github.com/goccy/go-yaml"

	"github.com/wippyai/framecodec/binary"
	"github.com/wippyai/framecodec/json"
	"github.com/wippyai/framecodec/stream"
)

// config is the YAML options file. Zero values keep the engine defaults.
type config struct {
	Binary binaryConfig `yaml:"binary"`
	JSON   jsonConfig   `yaml:"json"`
	Stream streamConfig `yaml:"stream"`
}

type binaryConfig struct {
	ByteOrder           string `yaml:"byte_order"`
	TypeIDs             string `yaml:"type_ids"`
	IndexWidth          int    `yaml:"index_width"`
	MaxDepth            int    `yaml:"max_depth"`
	MaxCollectionLength int    `yaml:"max_collection_length"`
	MaxStringSize       int    `yaml:"max_string_size"`
	EnumAsName          bool   `yaml:"enum_as_name"`
	SkipUnknownTypes    bool   `yaml:"skip_unknown_types"`
}

type jsonConfig struct {
	EnumAsName    *bool  `yaml:"enum_as_name"`
	Indent        string `yaml:"indent"`
	TypeTags      string `yaml:"type_tags"`
	TypeKey       string `yaml:"type_key"`
	ValueKey      string `yaml:"value_key"`
	Encoding      string `yaml:"encoding"`
	MaxDepth      int    `yaml:"max_depth"`
	MaxStringSize int    `yaml:"max_string_size"`
	StrictNull    bool   `yaml:"strict_null"`
	Nameless      bool   `yaml:"nameless"`
}

type streamConfig struct {
	BufferSize    int `yaml:"buffer_size"`
	MaxBufferSize int `yaml:"max_buffer_size"`
}

func loadConfig(path string) (*config, error) {
	cfg := &config{}
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *config) binaryOptions() (binary.Options, error) {
	opts := binary.DefaultOptions()
	b := c.Binary

	switch strings.ToLower(b.ByteOrder) {
	case "", "little":
	case "big":
		opts.ByteOrder = ebinary.BigEndian
	default:
		return opts, fmt.Errorf("binary.byte_order: unknown value %q", b.ByteOrder)
	}

	switch strings.ToLower(b.TypeIDs) {
	case "", "polymorphic":
	case "always":
		opts.TypeIDs = binary.TypeIDsAlways
	default:
		return opts, fmt.Errorf("binary.type_ids: unknown value %q", b.TypeIDs)
	}

	switch b.IndexWidth {
	case 0, 1, 2, 4:
		opts.IndexWidth = binary.IndexWidth(b.IndexWidth)
	default:
		return opts, fmt.Errorf("binary.index_width: must be 0, 1, 2 or 4, got %d", b.IndexWidth)
	}

	opts.EnumAsName = b.EnumAsName
	opts.SkipUnknownTypes = b.SkipUnknownTypes
	if b.MaxDepth > 0 {
		opts.MaxDepth = b.MaxDepth
	}
	if b.MaxCollectionLength > 0 {
		opts.MaxCollectionLength = b.MaxCollectionLength
	}
	if b.MaxStringSize > 0 {
		opts.MaxStringSize = b.MaxStringSize
	}
	return opts, nil
}

func (c *config) jsonOptions() (json.Options, error) {
	opts := json.DefaultOptions()
	j := c.JSON

	switch strings.ToLower(j.TypeTags) {
	case "", "polymorphic":
	case "always":
		opts.TypeTags = json.TypeTagsAlways
	case "never":
		opts.TypeTags = json.TypeTagsNever
	default:
		return opts, fmt.Errorf("json.type_tags: unknown value %q", j.TypeTags)
	}

	switch strings.ToLower(j.Encoding) {
	case "", "utf-8", "utf8":
	case "utf-16le", "utf16le":
		opts.Encoding = json.UTF16LE
	case "utf-16be", "utf16be":
		opts.Encoding = json.UTF16BE
	default:
		return opts, fmt.Errorf("json.encoding: unknown value %q", j.Encoding)
	}

	if j.EnumAsName != nil {
		opts.EnumAsName = *j.EnumAsName
	}
	opts.Indent = j.Indent
	opts.StrictNull = j.StrictNull
	opts.Nameless = j.Nameless
	if j.TypeKey != "" {
		opts.TypeKey = j.TypeKey
	}
	if j.ValueKey != "" {
		opts.ValueKey = j.ValueKey
	}
	if j.MaxDepth > 0 {
		opts.MaxDepth = j.MaxDepth
	}
	if j.MaxStringSize > 0 {
		opts.MaxStringSize = j.MaxStringSize
	}
	return opts, nil
}

func (c *config) streamOptions(format string) stream.Options {
	opts := stream.DefaultOptions()
	opts.Format = format
	if c.Stream.BufferSize > 0 {
		opts.BufferSize = c.Stream.BufferSize
	}
	if c.Stream.MaxBufferSize > 0 {
		opts.MaxBufferSize = c.Stream.MaxBufferSize
	}
	return opts
}
