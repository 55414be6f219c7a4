package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec is the compression applied to cached diagram markup.
type Codec string

const (
	CodecNone   Codec = "none"
	CodecZstd   Codec = "zstd"
	CodecLZ4    Codec = "lz4"
	CodecBrotli Codec = "br"
)

// ErrInvalidPayload is returned for blobs that do not decode to their
// recorded size.
var ErrInvalidPayload = errors.New("invalid payload")

// ParseCodec maps a configuration value to a Codec. Empty selects zstd.
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "":
		return CodecZstd, nil
	case CodecNone, CodecZstd, CodecLZ4, CodecBrotli:
		return Codec(s), nil
	}
	return "", fmt.Errorf("unknown codec %q", s)
}

func compress(c Codec, in []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return in, nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(in, nil), nil
	case CodecLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(in); err != nil {
			_ = zw.Close()
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CodecBrotli:
		var buf bytes.Buffer
		bw := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		if _, err := bw.Write(in); err != nil {
			_ = bw.Close()
			return nil, err
		}
		if err := bw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown codec %q", c)
}

// decompress rejects output larger than expected bytes.
func decompress(c Codec, in []byte, expected int64) ([]byte, error) {
	var out []byte
	switch c {
	case CodecNone:
		out = in
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err = dec.DecodeAll(in, nil)
		if err != nil {
			return nil, err
		}
	case CodecLZ4:
		var err error
		out, err = io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(in)), expected+1))
		if err != nil {
			return nil, err
		}
	case CodecBrotli:
		var err error
		out, err = io.ReadAll(io.LimitReader(brotli.NewReader(bytes.NewReader(in)), expected+1))
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown codec %q", c)
	}
	if int64(len(out)) != expected {
		return nil, fmt.Errorf("%w: %s decoded %d bytes, want %d", ErrInvalidPayload, c, len(out), expected)
	}
	return out, nil
}
