package config

import (
    "bytes"
    "encoding/json"
    "errors"
    "flag"
    "os"
    "path/filepath"
    "strings"

    pkgerrors "github.com/pkg/errors"
    "gopkg.in/yaml.v3"
)

// Config は CLI の既定値を上書きする設定ファイルの内容です。
// 0 や空文字の項目は「未設定」として扱います。
type Config struct {
    Decode DecodeConfig `json:"decode" yaml:"decode"`
    Encode EncodeConfig `json:"encode" yaml:"encode"`
    // デバッグログ
    Debug bool `json:"debug" yaml:"debug"`
}

type DecodeConfig struct {
    Device  string `json:"device" yaml:"device"`   // /dev/snd/midiC2D0, port:NAME, -
    Channel int    `json:"channel" yaml:"channel"` // 0=全チャネル
    Tick    string `json:"tick" yaml:"tick"`       // 例: "83ms"
    Hex     bool   `json:"hex" yaml:"hex"`
}

type EncodeConfig struct {
    Channel  int    `json:"channel" yaml:"channel"`
    Velocity int    `json:"velocity" yaml:"velocity"`
    NoteOff  string `json:"note_off" yaml:"note_off"` // off|on|auto|timed|realtime
    BPM      int    `json:"bpm" yaml:"bpm"`
    Format   string `json:"format" yaml:"format"` // hex|raw
    Out      string `json:"out" yaml:"out"`
    SMF      string `json:"smf" yaml:"smf"`
}

const dirName = "midinotes"

var fileNames = []string{"config.json", "config.yaml", "config.yml"}

// DefaultPath は OS 既定の設定ディレクトリ配下で最初に見つかった設定ファイルを返します。
// 見つからなければ空文字。
func DefaultPath() string {
    dir, err := os.UserConfigDir()
    if err != nil {
        return ""
    }
    for _, n := range fileNames {
        p := filepath.Join(dir, dirName, n)
        if _, err := os.Stat(p); err == nil {
            return p
        }
    }
    return ""
}

// Load は設定を読み込みます。拡張子が .yaml/.yml なら YAML、それ以外はまず JSON を試し、
// 失敗したら YAML として読みます。ファイルが無い場合は os.ErrNotExist を返します。
func Load(path string) (*Config, error) {
    bt, err := os.ReadFile(path)
    if err != nil {
        if errors.Is(err, os.ErrNotExist) {
            return nil, os.ErrNotExist
        }
        return nil, err
    }
    var c Config
    switch strings.ToLower(filepath.Ext(path)) {
    case ".yaml", ".yml":
        if err := yaml.Unmarshal(bt, &c); err != nil {
            return nil, pkgerrors.Wrapf(err, "parse %s", path)
        }
        return &c, nil
    }
    if jsonErr := json.Unmarshal(bt, &c); jsonErr != nil {
        c = Config{}
        dec := yaml.NewDecoder(bytes.NewReader(bt))
        dec.KnownFields(true)
        if yamlErr := dec.Decode(&c); yamlErr != nil {
            return nil, pkgerrors.Wrapf(jsonErr, "parse %s", path)
        }
    }
    return &c, nil
}

// Explicit はコマンドラインで明示指定されたフラグ名の集合です。
type Explicit map[string]bool

// Visited は fs.Parse 後に、明示指定されたフラグを集めます。
func Visited(fs *flag.FlagSet) Explicit {
    set := Explicit{}
    fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
    return set
}

// Int はフラグ name が未指定で v が設定済み（0以外）のとき dst を上書きします。
func (e Explicit) Int(name string, dst *int, v int) {
    if !e[name] && v != 0 {
        *dst = v
    }
}

func (e Explicit) Text(name string, dst *string, v string) {
    if !e[name] && strings.TrimSpace(v) != "" {
        *dst = strings.TrimSpace(v)
    }
}

func (e Explicit) Bool(name string, dst *bool, v bool) {
    if !e[name] && v {
        *dst = true
    }
}
