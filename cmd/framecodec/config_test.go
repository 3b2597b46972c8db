package main

import (
	ebinary "encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/framecodec/binary"
	"github.com/wippyai/framecodec/json"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framecodec.yaml")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
binary:
  byte_order: big
  type_ids: always
  index_width: 2
  skip_unknown_types: true
json:
  indent: "  "
  enum_as_name: false
  type_tags: never
  encoding: utf-16le
  nameless: true
stream:
  buffer_size: 128
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	bo, err := cfg.binaryOptions()
	if err != nil {
		t.Fatalf("binaryOptions: %v", err)
	}
	if bo.ByteOrder != ebinary.BigEndian || bo.TypeIDs != binary.TypeIDsAlways || bo.IndexWidth != binary.Index16 || !bo.SkipUnknownTypes {
		t.Errorf("binary options = %+v", bo)
	}

	jo, err := cfg.jsonOptions()
	if err != nil {
		t.Fatalf("jsonOptions: %v", err)
	}
	if jo.Indent != "  " || jo.EnumAsName || jo.TypeTags != json.TypeTagsNever || jo.Encoding != json.UTF16LE || !jo.Nameless {
		t.Errorf("json options = %+v", jo)
	}
	if jo.TypeKey != "$type" {
		t.Errorf("TypeKey = %q, want default", jo.TypeKey)
	}

	so := cfg.streamOptions(json.Name)
	if so.BufferSize != 128 || so.Format != json.Name {
		t.Errorf("stream options = %+v", so)
	}
}

func TestEmptyConfigKeepsDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	jo, err := cfg.jsonOptions()
	if err != nil {
		t.Fatalf("jsonOptions: %v", err)
	}
	if !jo.EnumAsName || jo.Encoding != json.UTF8 {
		t.Errorf("json options = %+v", jo)
	}
}

func TestConfigRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"byte order", "binary:\n  byte_order: middle\n", "binary.byte_order"},
		{"index width", "binary:\n  index_width: 3\n", "binary.index_width"},
		{"type ids", "binary:\n  type_ids: sometimes\n", "binary.type_ids"},
		{"type tags", "json:\n  type_tags: sometimes\n", "json.type_tags"},
		{"encoding", "json:\n  encoding: latin1\n", "json.encoding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, tt.text))
			if err != nil {
				t.Fatalf("loadConfig: %v", err)
			}
			_, berr := cfg.binaryOptions()
			_, jerr := cfg.jsonOptions()
			err = berr
			if err == nil {
				err = jerr
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestFormatOf(t *testing.T) {
	tests := map[string]string{
		"payload.bin": binary.Name,
		"doc.json":    json.Name,
		"-":           json.Name,
	}
	for path, want := range tests {
		if got := formatOf(path); got != want {
			t.Errorf("formatOf(%q) = %s, want %s", path, got, want)
		}
	}
	if otherFormat(binary.Name) != json.Name || otherFormat(json.Name) != binary.Name {
		t.Error("otherFormat does not swap formats")
	}
}
