package notation

import "time"

const (
    // PPQN は四分音符あたりのティック数。テンポに関係なく固定。
    PPQN = 6
    // MaxTicks はデコード側で表示する最大ティック数（四分音符4つ分）。
    MaxTicks = 24

    MinBPM = 30
    MaxBPM = 300

    microsecsPerMinute = 60_000_000
)

// DecoderTick はデコーダが使う近似ティック長（120 BPM 相当）。
// 入力側のテンポは事前に分からないので固定値で量子化する。
const DecoderTick = 83 * time.Millisecond

// MicrosPerTick は bpm から1ティックのマイクロ秒（整数除算）を求める。
func MicrosPerTick(bpm int) int64 {
    if bpm <= 0 {
        return 0
    }
    perQuarter := int64(microsecsPerMinute / bpm)
    return perQuarter / PPQN
}

// SecondsPerTick は MicrosPerTick の秒表記。
func SecondsPerTick(bpm int) float64 {
    return float64(MicrosPerTick(bpm)) / 1e6
}

// TickDuration は MicrosPerTick を time.Duration で返す。スリープ計算用。
func TickDuration(bpm int) time.Duration {
    return time.Duration(MicrosPerTick(bpm)) * time.Microsecond
}

// Quantize は経過時間を最も近いティック数に丸め、1..MaxTicks に収める。
func Quantize(elapsed, tick time.Duration) int {
    if tick <= 0 {
        return 1
    }
    if elapsed < 0 {
        elapsed = 0
    }
    return ClampTicks(int((elapsed + tick/2) / tick))
}

func ClampTicks(n int) int {
    if n < 1 {
        return 1
    }
    if n > MaxTicks {
        return MaxTicks
    }
    return n
}
