package pcm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// EncodeWAV writes b as a RIFF/WAVE stream using the given sample format.
// Int16 output is clamped to [-1, 1] before quantization.
func EncodeWAV(w io.Writer, b *Buffer, as SampleFormat) error {
	var (
		tag   uint16
		width int
	)
	switch as {
	case FormatFloat32:
		tag, width = wavFormatFloat, 4
	case FormatFloat64:
		tag, width = wavFormatFloat, 8
	case FormatInt16:
		tag, width = wavFormatPCM, 2
	default:
		return fmt.Errorf("%w %s", ErrUnsupportedFormat, as)
	}
	channels := b.Params.Channels
	sampleRate := b.Params.SampleRate
	dataSize := len(b.Samples) * width
	byteRate := sampleRate * channels * width
	blockAlign := channels * width

	header := make([]byte, 44)
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], uint32(36+dataSize))
	copy(header[8:], "WAVE")
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], tag)
	binary.LittleEndian.PutUint16(header[22:], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:], uint16(width*8))
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], uint32(dataSize))

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(header); err != nil {
		return err
	}
	var scratch [8]byte
	for _, s := range b.Samples {
		switch as {
		case FormatFloat32:
			binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(float32(s)))
		case FormatFloat64:
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(s))
		case FormatInt16:
			binary.LittleEndian.PutUint16(scratch[:], uint16(quantize16(s)))
		}
		if _, err := bw.Write(scratch[:width]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WAVSize returns the encoded size in bytes of b as a WAV stream.
func WAVSize(b *Buffer, as SampleFormat) int {
	width := 4
	switch as {
	case FormatFloat64:
		width = 8
	case FormatInt16:
		width = 2
	}
	return 44 + len(b.Samples)*width
}

func quantize16(s float64) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(math.Round(s * 32767))
}
