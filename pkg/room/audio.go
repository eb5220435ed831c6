package room

// Opus in WebRTC runs at 48kHz; the model side usually wants 24kHz.
const (
	OpusSampleRate   = 48000
	OpusFrameSamples = 960 // 20ms at 48kHz
	maxOpusFrame     = 5760
)

// Resample converts audio from one sample rate to another using linear interpolation.
// This is a simple resampler suitable for speech audio.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)
	if newLen == 0 {
		return []int16{}
	}

	result := make([]int16, newLen)
	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx >= len(samples)-1 {
			result[i] = samples[len(samples)-1]
			continue
		}
		s1 := float64(samples[srcIdx])
		s2 := float64(samples[srcIdx+1])
		result[i] = int16(s1 + frac*(s2-s1))
	}
	return result
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// framer accumulates samples and hands out fixed-size frames for the encoder.
type framer struct {
	size int
	buf  []int16
}

func newFramer(size int) *framer {
	return &framer{size: size}
}

// Push appends samples and returns every complete frame.
func (f *framer) Push(samples []int16) [][]int16 {
	f.buf = append(f.buf, samples...)
	var frames [][]int16
	for len(f.buf) >= f.size {
		frame := make([]int16, f.size)
		copy(frame, f.buf[:f.size])
		frames = append(frames, frame)
		f.buf = f.buf[f.size:]
	}
	return frames
}

// Pending returns the number of buffered samples.
func (f *framer) Pending() int {
	return len(f.buf)
}
