package notation

import "fmt"

// ConfigError は起動時の設定値エラー。入力を読む前に返され、致命的として扱う。
type ConfigError struct {
    Field  string
    Value  any
    Reason string
}

func (e *ConfigError) Error() string {
    return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// FormatError はトークン単位の書式エラー。該当トークンだけをスキップして処理を続ける。
type FormatError struct {
    Token  string
    Reason string
}

func (e *FormatError) Error() string {
    if e.Reason == "" {
        return fmt.Sprintf("invalid note format %q (use C4, F#5.., Bb3... or --- for rests)", e.Token)
    }
    return fmt.Sprintf("invalid token %q: %s", e.Token, e.Reason)
}

// RangeError は計算したピッチ番号が 0..127 を外れた場合。
type RangeError struct {
    Token string
    Pitch int
}

func (e *RangeError) Error() string {
    return fmt.Sprintf("note %q is out of MIDI range (pitch %d, want 0-127)", e.Token, e.Pitch)
}
