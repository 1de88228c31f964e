package midi

import (
    "fmt"
    "time"
)

// Type は MIDI イベント種別。
type Type string

const (
    NoteOn        Type = "note_on"
    NoteOff       Type = "note_off"
    ControlChange Type = "control_change"
    ProgramChange Type = "program_change"
    Other         Type = "other"
)

// ステータスバイトの上位ニブル。
const (
    StatusNoteOff byte = 0x80
    StatusNoteOn  byte = 0x90
    statusMask    byte = 0xF0
    channelMask   byte = 0x0F
)

// Event は正規化されたMIDIイベント。
type Event struct {
    Type    Type
    Channel uint8 // 1-16
    Data1   uint8 // Note番号 / CC番号 / Program番号
    Data2   uint8 // Velocity / CC値（ProgramChangeでは未使用）
    Time    time.Time
}

// IsStatus は上位ビットが立っているか（= 新しいメッセージの開始）を返す。
func IsStatus(b byte) bool { return b&0x80 != 0 }

// ParseEvent は3バイトのチャネルメッセージを Event に正規化する。
// Velocity 0 の NoteOn は NoteOff として扱う。
func ParseEvent(status, data1, data2 byte, t time.Time) Event {
    ev := Event{
        Channel: (status & channelMask) + 1,
        Data1:   data1 & 0x7F,
        Data2:   data2 & 0x7F,
        Time:    t,
    }
    if status >= 0xF0 {
        // System 系はチャネルを持たない
        ev.Type = Other
        ev.Channel = 0
        return ev
    }
    switch status & statusMask {
    case StatusNoteOff:
        ev.Type = NoteOff
    case StatusNoteOn:
        if ev.Data2 == 0 {
            ev.Type = NoteOff
        } else {
            ev.Type = NoteOn
        }
    case 0xB0:
        ev.Type = ControlChange
    case 0xC0:
        ev.Type = ProgramChange
    default:
        ev.Type = Other
    }
    return ev
}

func (e Event) String() string {
    return fmt.Sprintf("%s ch=%d data1=%d data2=%d", e.Type, e.Channel, e.Data1, e.Data2)
}

// Input はオープン済みのMIDI入力デバイスを表す。
type Input interface {
    Close() error
}

// Output はオープン済みのMIDI出力デバイス。1回の Write が1メッセージ。
type Output interface {
    Write(p []byte) (int, error)
    Close() error
}
