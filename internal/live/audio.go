package live

import (
	"strconv"
	"strings"
	"time"
)

const bytesPerSample = 2 // 16-bit little-endian mono PCM

// SampleRate reads the rate parameter of a PCM MIME type such as
// "audio/pcm;rate=24000". def is returned when it is absent or invalid.
func SampleRate(mimeType string, def int) int {
	for _, p := range strings.Split(mimeType, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// PCMDuration is the play time of n bytes of mono 16-bit PCM at rate Hz.
func PCMDuration(n int, rate int) time.Duration {
	if rate <= 0 || n <= 0 {
		return 0
	}
	samples := int64(n / bytesPerSample)
	return time.Duration(samples) * time.Second / time.Duration(rate)
}
