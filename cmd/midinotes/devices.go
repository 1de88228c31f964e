package main

import (
    "fmt"

    "github.com/sirupsen/logrus"

    "midinotes/internal/midi"
)

// runDevices は rawmidi デバイスと、ネイティブビルドであれば入出力ポートを一覧表示する。
func runDevices() error {
    setupLogger(false)

    fmt.Println("rawmidi デバイス:")
    devs := midi.ListRawDevices()
    if len(devs) == 0 {
        fmt.Println("  (なし)")
    }
    for _, d := range devs {
        fmt.Printf("  %s\n", d)
    }

    ins, err := midi.ListInputs()
    if err != nil {
        logrus.WithError(err).Debug("ネイティブ MIDI ポートの一覧を取得できません")
        logrus.Info("port: 入出力を使うにはビルドタグ 'midi_native' が必要です。")
        return nil
    }
    printPorts("入力ポート (decode -device port:名前):", ins)

    outs, err := midi.ListOutputs()
    if err != nil {
        return err
    }
    printPorts("出力ポート (encode -out port:名前):", outs)
    return nil
}

func printPorts(title string, names []string) {
    fmt.Println(title)
    if len(names) == 0 {
        fmt.Println("  (なし)")
        return
    }
    for _, n := range names {
        fmt.Printf("  %s%s\n", midi.PortPrefix, n)
    }
}
