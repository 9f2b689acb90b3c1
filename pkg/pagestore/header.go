package pagestore

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"bloomd/pkg/bloom"
)

const (
	magic         uint32 = 0xCB1005DD
	formatVersion uint32 = 1

	// HeaderSize is reserved in front of the bitmap of every generation file.
	HeaderSize = 512

	offMagic    = 0
	offVersion  = 4
	offK        = 8
	offBits     = 16
	offCapacity = 24
	offCount    = 32
	offProb     = 40
	offCRC      = 48
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeHeader(m bloom.Meta) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[offMagic:], magic)
	binary.LittleEndian.PutUint32(buf[offVersion:], formatVersion)
	binary.LittleEndian.PutUint32(buf[offK:], m.K)
	binary.LittleEndian.PutUint64(buf[offBits:], m.Bits)
	binary.LittleEndian.PutUint64(buf[offCapacity:], m.Capacity)
	binary.LittleEndian.PutUint64(buf[offCount:], m.Count)
	binary.LittleEndian.PutUint64(buf[offProb:], math.Float64bits(m.Probability))
	binary.LittleEndian.PutUint32(buf[offCRC:], crc32.Checksum(buf[:offCRC], castagnoli))
	return buf
}

func decodeHeader(buf []byte) (bloom.Meta, error) {
	if len(buf) < HeaderSize {
		return bloom.Meta{}, fmt.Errorf("%w: short header", ErrBadHeader)
	}
	if got := binary.LittleEndian.Uint32(buf[offMagic:]); got != magic {
		return bloom.Meta{}, fmt.Errorf("%w: magic %#x", ErrBadHeader, got)
	}
	if got := binary.LittleEndian.Uint32(buf[offVersion:]); got != formatVersion {
		return bloom.Meta{}, fmt.Errorf("%w: version %d", ErrBadHeader, got)
	}
	if crc32.Checksum(buf[:offCRC], castagnoli) != binary.LittleEndian.Uint32(buf[offCRC:]) {
		return bloom.Meta{}, fmt.Errorf("%w: checksum mismatch", ErrBadHeader)
	}

	return bloom.Meta{
		K:           binary.LittleEndian.Uint32(buf[offK:]),
		Bits:        binary.LittleEndian.Uint64(buf[offBits:]),
		Capacity:    binary.LittleEndian.Uint64(buf[offCapacity:]),
		Count:       binary.LittleEndian.Uint64(buf[offCount:]),
		Probability: math.Float64frombits(binary.LittleEndian.Uint64(buf[offProb:])),
	}, nil
}

func encodeWords(words []uint64) []byte {
	buf := make([]byte, len(words)*8)
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	return buf
}

func decodeWords(buf []byte) []uint64 {
	words := make([]uint64, len(buf)/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return words
}
