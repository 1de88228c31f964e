// Package encoder は音符テキストを MIDI ノートオン/オフのバイト列に変換する。
package encoder

import (
    "strings"
    "time"

    "midinotes/internal/notation"
)

// Policy はノートオフの出し方。実行中は変わらない。
type Policy string

const (
    // PolicyOff はノートオンのみ。ノートオフは一切出さない。
    PolicyOff Policy = "off"
    // PolicyOn は入力終了時に、鳴らしたピッチごとに1つずつノートオフを出す。
    PolicyOn Policy = "on"
    // PolicyAuto はノートオンの直後に待たずにノートオフを出す。
    PolicyAuto Policy = "auto"
    // PolicyTimed はノートオン → 音価ぶん待つ → ノートオフ。完全に逐次。
    PolicyTimed Policy = "timed"
    // PolicyRealtime はノートオフをスケジューラに任せ、次のトークンへ進む。
    PolicyRealtime Policy = "realtime"
)

// Policies は受け付けるポリシーの一覧（usage 表示用）。
var Policies = []Policy{PolicyOff, PolicyOn, PolicyAuto, PolicyTimed, PolicyRealtime}

// ParsePolicy は大文字小文字を無視してポリシー名を解釈する。
func ParsePolicy(s string) (Policy, error) {
    p := Policy(strings.ToLower(strings.TrimSpace(s)))
    for _, v := range Policies {
        if p == v {
            return p, nil
        }
    }
    return "", &notation.ConfigError{Field: "note-off policy", Value: s, Reason: "must be one of off, on, auto, timed, realtime"}
}

// Config はエンコーダの構築時設定。
type Config struct {
    Channel  int // 1-16
    Velocity int // 0-127
    Policy   Policy
    BPM      int // 30-300
}

// DefaultConfig は元のツールと同じ既定値（ch1, vel64, off, 120bpm）。
func DefaultConfig() Config {
    return Config{Channel: 1, Velocity: 64, Policy: PolicyOff, BPM: 120}
}

// Validate は入力を読む前に設定値を検査する。
func (c Config) Validate() error {
    if c.Channel < 1 || c.Channel > 16 {
        return &notation.ConfigError{Field: "channel", Value: c.Channel, Reason: "must be between 1 and 16"}
    }
    if c.Velocity < 0 || c.Velocity > 127 {
        return &notation.ConfigError{Field: "velocity", Value: c.Velocity, Reason: "must be between 0 and 127"}
    }
    if _, err := ParsePolicy(string(c.Policy)); err != nil {
        return err
    }
    if c.BPM < notation.MinBPM || c.BPM > notation.MaxBPM {
        return &notation.ConfigError{Field: "bpm", Value: c.BPM, Reason: "must be between 30 and 300"}
    }
    return nil
}

// Tick は1ティックの長さ。
func (c Config) Tick() time.Duration {
    return notation.TickDuration(c.BPM)
}
