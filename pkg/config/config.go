// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package config loads campaign configuration documents.
// Documents are JSON with optional trailing // comments, or YAML.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fij-project/fij/pkg/osutil"
	"sigs.k8s.io/yaml"
)

func LoadFile(filename string, cfg any) error {
	return LoadPatchedFile(filename, nil, cfg)
}

// LoadPatchedFile is like LoadFile, but the JSON object patch is deep-merged
// into the document before decoding (see MergeJSONData).
func LoadPatchedFile(filename string, patch []byte, cfg any) error {
	if filename == "" {
		return fmt.Errorf("no config file specified")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if IsYAML(filename) {
		data, err = yaml.YAMLToJSON(data)
		if err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		data = StripComments(data)
	}
	if len(patch) != 0 {
		data, err = MergeJSONData(data, patch)
		if err != nil {
			return fmt.Errorf("failed to apply config patch: %w", err)
		}
	}
	return decode(data, cfg)
}

func IsYAML(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

var (
	hashComments  = regexp.MustCompile(`(^|\n)\s*#[^\n]*`)
	slashComments = regexp.MustCompile(`//[^\n]*`)
)

// StripComments removes comment lines starting with # and
// everything after // on every line.
func StripComments(data []byte) []byte {
	data = hashComments.ReplaceAll(data, nil)
	return slashComments.ReplaceAll(data, nil)
}

// LoadData decodes a JSON document into cfg. Unknown fields are an error,
// numbers in untyped positions are kept as json.Number.
func LoadData(data []byte, cfg any) error {
	return decode(StripComments(data), cfg)
}

func decode(data []byte, cfg any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func SaveFile(filename string, cfg any) error {
	data, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return err
	}
	return osutil.WriteFile(filename, data)
}
