package converter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/chai2010/webp"
)

const (
	vp8xAnimationFlag = 0x02
	vp8xAlphaFlag     = 0x10
	anmfHeaderSize    = 16
)

type riffChunk struct {
	id   string
	data []byte
}

// decodeWebP decodes a still WebP, or the first frame of an animated one
// placed on its canvas.
func decodeWebP(data []byte) (image.Image, error) {
	if !isAnimatedWebP(data) {
		return webp.Decode(bytes.NewReader(data))
	}
	return decodeFirstWebPFrame(data)
}

func isAnimatedWebP(data []byte) bool {
	return len(data) >= 21 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP" &&
		string(data[12:16]) == "VP8X" &&
		data[20]&vp8xAnimationFlag != 0
}

func decodeFirstWebPFrame(data []byte) (image.Image, error) {
	chunks, err := riffChunks(data[12:])
	if err != nil {
		return nil, err
	}
	var canvasW, canvasH int
	var anmf []byte
	for _, c := range chunks {
		switch c.id {
		case "VP8X":
			if len(c.data) < 10 {
				return nil, errors.New("webp: short VP8X chunk")
			}
			canvasW = uint24(c.data[4:7]) + 1
			canvasH = uint24(c.data[7:10]) + 1
		case "ANMF":
			if anmf == nil {
				anmf = c.data
			}
		}
	}
	if anmf == nil {
		return nil, errors.New("webp: animation has no frames")
	}
	if len(anmf) < anmfHeaderSize {
		return nil, errors.New("webp: short ANMF chunk")
	}
	x := 2 * uint24(anmf[0:3])
	y := 2 * uint24(anmf[3:6])
	w := uint24(anmf[6:9]) + 1
	h := uint24(anmf[9:12]) + 1

	sub, err := riffChunks(anmf[anmfHeaderSize:])
	if err != nil {
		return nil, err
	}
	var alph, bitstream *riffChunk
	for i := range sub {
		switch sub[i].id {
		case "ALPH":
			alph = &sub[i]
		case "VP8 ", "VP8L":
			if bitstream == nil {
				bitstream = &sub[i]
			}
		}
	}
	if bitstream == nil {
		return nil, errors.New("webp: first frame has no bitstream")
	}

	frame, err := webp.Decode(bytes.NewReader(stillWebP(alph, bitstream, w, h)))
	if err != nil {
		return nil, fmt.Errorf("first frame: %w", err)
	}
	fb := frame.Bounds()
	if x == 0 && y == 0 && fb.Dx() == canvasW && fb.Dy() == canvasH {
		return frame, nil
	}
	canvas := image.NewNRGBA(image.Rect(0, 0, canvasW, canvasH))
	draw.Draw(canvas, image.Rect(x, y, x+fb.Dx(), y+fb.Dy()), frame, fb.Min, draw.Src)
	return canvas, nil
}

// stillWebP wraps a single frame bitstream as a standalone WebP file. A lossy
// bitstream with a separate alpha chunk needs the extended header.
func stillWebP(alph, bitstream *riffChunk, w, h int) []byte {
	var body bytes.Buffer
	body.WriteString("WEBP")
	if alph != nil && bitstream.id == "VP8 " {
		vp8x := make([]byte, 10)
		vp8x[0] = vp8xAlphaFlag
		putUint24(vp8x[4:7], w-1)
		putUint24(vp8x[7:10], h-1)
		writeChunk(&body, "VP8X", vp8x)
		writeChunk(&body, "ALPH", alph.data)
	}
	writeChunk(&body, bitstream.id, bitstream.data)

	out := make([]byte, 8, 8+body.Len())
	copy(out, "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(body.Len()))
	return append(out, body.Bytes()...)
}

func riffChunks(b []byte) ([]riffChunk, error) {
	var chunks []riffChunk
	for len(b) >= 8 {
		id := string(b[:4])
		n := int(binary.LittleEndian.Uint32(b[4:8]))
		b = b[8:]
		if n < 0 || n > len(b) {
			return nil, fmt.Errorf("webp: truncated %q chunk", id)
		}
		chunks = append(chunks, riffChunk{id: id, data: b[:n]})
		skip := n + n&1
		if skip > len(b) {
			skip = len(b)
		}
		b = b[skip:]
	}
	return chunks, nil
}

func writeChunk(buf *bytes.Buffer, id string, data []byte) {
	var hdr [8]byte
	copy(hdr[:4], id)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(data)))
	buf.Write(hdr[:])
	buf.Write(data)
	if len(data)%2 == 1 {
		buf.WriteByte(0)
	}
}

func uint24(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16
}

func putUint24(b []byte, v int) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
