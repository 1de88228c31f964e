//go:build midi_native

package midi

import (
    "fmt"
    "io"
    "sync"

    "gitlab.com/gomidi/midi"
    "gitlab.com/gomidi/rtmididrv"
)

// inputWrap は rtmididrv のポート/ドライバとパイプをまとめて Close する薄いラッパです。
type inputWrap struct {
    drv  *rtmididrv.Driver
    in   midi.In
    pw   *io.PipeWriter
    once sync.Once
}

// OpenInput は指定名の入力ポートを開き、受信した生バイトを io.Reader として返す。
// デバイス名は完全一致を優先し、無ければ部分一致。
func OpenInput(deviceName string) (Input, io.Reader, error) {
    drv, err := rtmididrv.New()
    if err != nil {
        return nil, nil, fmt.Errorf("rtmididrv.New: %w", err)
    }
    ins, err := drv.Ins()
    if err != nil {
        _ = drv.Close()
        return nil, nil, fmt.Errorf("MIDI入力列挙に失敗: %w", err)
    }
    names := make([]string, len(ins))
    for i, p := range ins {
        names[i] = p.String()
    }
    idx := matchPort(names, deviceName)
    if idx < 0 {
        _ = drv.Close()
        return nil, nil, fmt.Errorf("MIDI入力デバイスが見つかりません: %s", deviceName)
    }
    in := ins[idx]
    if err := in.Open(); err != nil {
        _ = drv.Close()
        return nil, nil, fmt.Errorf("入力オープン失敗: %w", err)
    }

    pr, pw := io.Pipe()

    // 生バイトをそのままデコーダへ流す。Realtime/System 系は捨てる
    if err := in.SetListener(func(bt []byte, _ int64) {
        if len(bt) == 0 || bt[0] >= 0xF0 {
            return
        }
        _, _ = pw.Write(bt)
    }); err != nil {
        _ = in.Close()
        _ = drv.Close()
        _ = pw.Close()
        return nil, nil, fmt.Errorf("リスナ設定失敗: %w", err)
    }

    return &inputWrap{drv: drv, in: in, pw: pw}, pr, nil
}

func (w *inputWrap) Close() error {
    var err error
    w.once.Do(func() {
        // best-effort 停止
        _ = w.in.StopListening()
        _ = w.in.Close()
        _ = w.pw.Close()
        err = w.drv.Close()
    })
    return err
}

type outputWrap struct {
    drv  *rtmididrv.Driver
    out  midi.Out
    once sync.Once
}

// OpenOutput は指定名の出力ポートを開く。
func OpenOutput(deviceName string) (Output, error) {
    drv, err := rtmididrv.New()
    if err != nil {
        return nil, fmt.Errorf("rtmididrv.New: %w", err)
    }
    outs, err := drv.Outs()
    if err != nil {
        _ = drv.Close()
        return nil, fmt.Errorf("MIDI出力列挙に失敗: %w", err)
    }
    names := make([]string, len(outs))
    for i, p := range outs {
        names[i] = p.String()
    }
    idx := matchPort(names, deviceName)
    if idx < 0 {
        _ = drv.Close()
        return nil, fmt.Errorf("MIDI出力デバイスが見つかりません: %s", deviceName)
    }
    out := outs[idx]
    if err := out.Open(); err != nil {
        _ = drv.Close()
        return nil, fmt.Errorf("出力オープン失敗: %w", err)
    }
    return &outputWrap{drv: drv, out: out}, nil
}

func (w *outputWrap) Write(p []byte) (int, error) {
    return w.out.Write(p)
}

func (w *outputWrap) Close() error {
    var err error
    w.once.Do(func() {
        _ = w.out.Close()
        err = w.drv.Close()
    })
    return err
}

// ListInputs は利用可能な入力デバイスの名称一覧を返す。
func ListInputs() ([]string, error) {
    drv, err := rtmididrv.New()
    if err != nil {
        return nil, err
    }
    defer drv.Close()
    ins, err := drv.Ins()
    if err != nil {
        return nil, err
    }
    names := make([]string, 0, len(ins))
    for _, i := range ins {
        names = append(names, i.String())
    }
    return names, nil
}

// ListOutputs は利用可能な出力デバイスの名称一覧を返す。
func ListOutputs() ([]string, error) {
    drv, err := rtmididrv.New()
    if err != nil {
        return nil, err
    }
    defer drv.Close()
    outs, err := drv.Outs()
    if err != nil {
        return nil, err
    }
    names := make([]string, 0, len(outs))
    for _, o := range outs {
        names = append(names, o.String())
    }
    return names, nil
}
