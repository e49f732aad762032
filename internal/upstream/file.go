package upstream

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig はUPSTREAMS_FILEで指定するYAMLファイルの構造。
//
//	upstreams:
//	  forum:
//	    base_url: https://forum.example.com
//	    path_prefix: /api/v2/
//	    auth: required
type fileConfig struct {
	Upstreams map[string]fileTarget `yaml:"upstreams"`
}

// fileTarget は1アップストリーム分の上書き設定。
// 省略されたフィールドは既定値を維持する。
type fileTarget struct {
	BaseURL        *string           `yaml:"base_url"`
	PathPrefix     *string           `yaml:"path_prefix"`
	ForwardHeaders []string          `yaml:"forward_headers"`
	ExtraHeaders   map[string]string `yaml:"extra_headers"`
	CORSHeaders    []string          `yaml:"cors_headers"`
	Auth           *AuthMode         `yaml:"auth"`
}

// ApplyFile はYAMLファイルの内容でtargetsを上書きした新しいスライスを返す。
// pathが空の場合はtargetsをそのまま返す。未知の論理名が含まれる場合はエラーとする。
func ApplyFile(path string, targets []Target) ([]Target, error) {
	if path == "" {
		return targets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("アップストリーム設定ファイル %q の読み込みに失敗: %w", path, err)
	}
	return applyYAML(data, targets)
}

// applyYAML はYAMLバイト列をパースしてtargetsに適用する。
func applyYAML(data []byte, targets []Target) ([]Target, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("アップストリーム設定ファイルのパースに失敗: %w", err)
	}

	index := make(map[string]int, len(targets))
	out := make([]Target, len(targets))
	for i, t := range targets {
		out[i] = t
		index[t.Name()] = i
	}

	for name, override := range cfg.Upstreams {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q は設定ファイルで上書きできません", ErrUnknownUpstream, name)
		}
		t := out[i]
		if override.BaseURL != nil {
			t.BaseURL = trimBase(*override.BaseURL)
		}
		if override.PathPrefix != nil {
			t.PathPrefix = *override.PathPrefix
		}
		if override.ForwardHeaders != nil {
			t.ForwardHeaders = override.ForwardHeaders
		}
		if override.ExtraHeaders != nil {
			t.ExtraHeaders = override.ExtraHeaders
		}
		if override.CORSHeaders != nil {
			t.CORSHeaders = override.CORSHeaders
		}
		if override.Auth != nil {
			t.Auth = *override.Auth
		}
		out[i] = t
	}
	return out, nil
}
