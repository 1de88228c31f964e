package midi

import (
    "io"
    "os"
    "path/filepath"
    "strings"

    "github.com/pkg/errors"
)

const (
    // Stdio は標準入出力を表すソース/シンク識別子。
    Stdio = "-"
    // PortPrefix はネイティブ MIDI ポートを指す識別子の接頭辞（例: port:IAC Driver Bus 1）。
    PortPrefix = "port:"

    DefaultDevice = "/dev/snd/midiC2D0"
    rawDeviceGlob = "/dev/snd/midi*"
)

// NormalizeSource はユーザー指定のソース/シンク識別子を正規化します。
// 空文字や stdin/stdout は "-" に、file:// は除去します。
func NormalizeSource(s string) string {
    s = strings.TrimSpace(s)
    switch strings.ToLower(s) {
    case "", "-", "stdin", "stdout":
        return Stdio
    }
    if strings.HasPrefix(s, "file://") {
        return strings.TrimPrefix(s, "file://")
    }
    return s
}

// Source はデコーダの入力。Device が true の場合、EOF や 0 バイト読み込みは再試行する。
type Source struct {
    io.Reader
    Name   string
    Device bool
    close  func() error
}

func (s *Source) Close() error {
    if s.close == nil {
        return nil
    }
    return s.close()
}

// OpenSource は識別子に応じて標準入力・ファイル/デバイス・ネイティブポートを開く。
func OpenSource(id string) (*Source, error) {
    id = NormalizeSource(id)
    switch {
    case id == Stdio:
        return &Source{Reader: os.Stdin, Name: "stdin"}, nil
    case strings.HasPrefix(id, PortPrefix):
        name := strings.TrimPrefix(id, PortPrefix)
        in, r, err := OpenInput(name)
        if err != nil {
            return nil, errors.Wrapf(err, "cannot open MIDI port %s", name)
        }
        return &Source{Reader: r, Name: id, close: in.Close}, nil
    }
    f, err := os.Open(id)
    if err != nil {
        return nil, errors.Wrapf(err, "cannot open MIDI device %s", id)
    }
    src := &Source{Reader: f, Name: id, close: f.Close}
    if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
        src.Device = true
    }
    return src, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// OpenSink はエンコーダの出力先を開く。"-" は標準出力（Close しない）。
func OpenSink(id string) (io.WriteCloser, error) {
    id = NormalizeSource(id)
    switch {
    case id == Stdio:
        return nopWriteCloser{os.Stdout}, nil
    case strings.HasPrefix(id, PortPrefix):
        name := strings.TrimPrefix(id, PortPrefix)
        out, err := OpenOutput(name)
        if err != nil {
            return nil, errors.Wrapf(err, "cannot open MIDI port %s", name)
        }
        return out, nil
    }
    f, err := os.OpenFile(id, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
    if err != nil {
        return nil, errors.Wrapf(err, "cannot open output %s", id)
    }
    return f, nil
}

// ListRawDevices は ALSA rawmidi デバイスファイルの一覧を返す。
func ListRawDevices() []string {
    devs, _ := filepath.Glob(rawDeviceGlob)
    return devs
}

// Alternatives はソースを開けなかったときに案内する候補の一覧。
// rawmidi デバイスと、ネイティブビルドであれば入力ポート名（port: 付き）を含む。
func Alternatives() []string {
    out := ListRawDevices()
    if names, err := ListInputs(); err == nil {
        for _, n := range names {
            out = append(out, PortPrefix+n)
        }
    }
    return out
}

// matchPort は完全一致 → 部分一致の順でポートを探し、添字を返す。無ければ -1。
func matchPort(names []string, want string) int {
    for i, n := range names {
        if n == want {
            return i
        }
    }
    if want == "" {
        return -1
    }
    for i, n := range names {
        if strings.Contains(n, want) {
            return i
        }
    }
    return -1
}
