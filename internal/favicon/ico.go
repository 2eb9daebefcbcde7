package favicon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
)

// encodeICO writes a multi-size ICO container with PNG-compressed entries.
// PNG payloads inside ICO are supported by every browser that requests
// favicon.ico.
func encodeICO(img image.Image, sizes []int) ([]byte, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no sizes requested")
	}

	payloads := make([][]byte, 0, len(sizes))
	for _, size := range sizes {
		data, err := encodePNG(img, size)
		if err != nil {
			return nil, fmt.Errorf("encode %dpx entry: %w", size, err)
		}
		payloads = append(payloads, data)
	}

	var buf bytes.Buffer

	// ICONDIR: reserved, type (1 = icon), count
	header := []uint16{0, 1, uint16(len(sizes))}
	for _, v := range header {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}

	// ICONDIRENTRY table: 16 bytes per image, payloads follow the table.
	offset := uint32(6 + 16*len(sizes))
	for i, size := range sizes {
		dim := uint8(size)
		if size >= 256 {
			dim = 0 // 256 is encoded as zero
		}
		entry := struct {
			Width, Height, Colors, Reserved uint8
			Planes, BitCount                uint16
			Size, Offset                    uint32
		}{
			Width:    dim,
			Height:   dim,
			Planes:   1,
			BitCount: 32,
			Size:     uint32(len(payloads[i])),
			Offset:   offset,
		}
		if err := binary.Write(&buf, binary.LittleEndian, entry); err != nil {
			return nil, err
		}
		offset += uint32(len(payloads[i]))
	}

	for _, payload := range payloads {
		buf.Write(payload)
	}

	return buf.Bytes(), nil
}
