package notation

import (
    "strconv"
    "strings"
)

// 出力はシャープ表記のみ。
var pitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// 入力側の表。フラットは異名同音として同じ値に写す（キーは大文字）。
var nameValues = map[string]int{
    "C": 0, "C#": 1, "DB": 1, "D": 2, "D#": 3, "EB": 3,
    "E": 4, "F": 5, "F#": 6, "GB": 6, "G": 7, "G#": 8,
    "AB": 8, "A": 9, "A#": 10, "BB": 10, "B": 11,
}

const (
    MinPitch = 0
    MaxPitch = 127
)

// PitchToName はピッチ番号 (0..127) を音名とオクターブに変換する。
// 範囲チェックは呼び出し側の責務。C4 = 60。
func PitchToName(p int) (name string, octave int) {
    return pitchNames[p%12], p/12 - 1
}

// PitchString は "C#4" のような音名+オクターブ表記を返す。
func PitchString(p int) string {
    name, octave := PitchToName(p)
    return name + strconv.Itoa(octave)
}

// NameToPitch は音名とオクターブからピッチ番号を求める。
// 大文字小文字は区別しない。未知の音名は FormatError、0..127 外は RangeError。
func NameToPitch(name string, octave int) (int, error) {
    key := strings.ToUpper(strings.TrimSpace(name))
    base, ok := nameValues[key]
    if !ok {
        return 0, &FormatError{Token: name, Reason: "unknown note name"}
    }
    p := base + (octave+1)*12
    if p < MinPitch || p > MaxPitch {
        return 0, &RangeError{Token: name + strconv.Itoa(octave), Pitch: p}
    }
    return p, nil
}
