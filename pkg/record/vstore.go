// ABOUTME: VStore — the spilled-value store for property blobs too big to
// ABOUTME: inline, chained across OverflowValue pages and zstd-compressed

package record

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/nainya/sombra/pkg/errs"
	"github.com/nainya/sombra/pkg/page"
)

// VRef locates a spilled value: the head OverflowValue page, how many
// pages the chain spans, the on-disk (compressed) byte length, and a
// checksum over the reconstructed (decompressed) payload (§3 GLOSSARY).
type VRef struct {
	StartPage uint64
	NPages    uint32
	ByteLen   uint32 // compressed length on disk
	CRC32     uint32 // checksum of the decompressed payload
}

// EncodeVRef/DecodeVRef give VRef a fixed 20-byte wire form so it can be
// embedded inline in a version entry's payload.
func EncodeVRef(buf []byte, v VRef) {
	binary.BigEndian.PutUint64(buf[0:8], v.StartPage)
	binary.BigEndian.PutUint32(buf[8:12], v.NPages)
	binary.BigEndian.PutUint32(buf[12:16], v.ByteLen)
	binary.BigEndian.PutUint32(buf[16:20], v.CRC32)
}

func DecodeVRef(buf []byte) VRef {
	return VRef{
		StartPage: binary.BigEndian.Uint64(buf[0:8]),
		NPages:    binary.BigEndian.Uint32(buf[8:12]),
		ByteLen:   binary.BigEndian.Uint32(buf[12:16]),
		CRC32:     binary.BigEndian.Uint32(buf[16:20]),
	}
}

const VRefSize = 20

// overflowHeaderSize is the per-page chain header inside an OverflowValue
// page's payload: an 8-byte next-page pointer.
const overflowHeaderSize = 8

// Anything spilled to the VStore already cleared GraphOptions.InlinePropBlob
// before reaching here, so it is large enough that zstd compression is
// always worth its frame overhead.
var zstdEncoder *zstd.Encoder
var zstdDecoder *zstd.Decoder

func init() {
	// SpeedDefault is the right tradeoff for property blobs written inline
	// with a commit: compression competes with transaction latency.
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
}

// writeGuard is the subset of pager.WriteGuard the VStore needs. Declared
// locally so this package never imports pkg/pager (avoiding an import
// cycle: pager is the leaf, record sits above it).
type writeGuard interface {
	AllocatePage(kind page.Kind) (uint64, []byte)
	Put(pageID uint64, buf []byte)
}

// readGuard is the subset of pager.ReadGuard/WriteGuard the VStore needs
// to read a chain back.
type readGuard interface {
	GetPage(pageID uint64) ([]byte, error)
}

// WriteValue zstd-compresses data (always; there is no size threshold) and
// appends it across as many OverflowValue pages as needed, returning a VRef locating
// the chain. Each page is staged via wg.Put/AllocatePage as part of the
// caller's in-flight transaction — nothing is durable until Commit.
// AllocatePage draws its buffer from the pager's BufferPool, so a
// multi-page chain reuses recycled buffers across transactions instead of
// allocating fresh ones per chunk (§5).
func WriteValue(wg writeGuard, pageSize uint32, data []byte) VRef {
	sum := page.Checksum(0, 0, data) // logical content checksum, salt folded in at page-stamp time by the pager
	payload := zstdEncoder.EncodeAll(data, nil)

	chunkSize := int(pageSize) - page.HeaderSize - overflowHeaderSize
	var pageIDs []uint64
	for off := 0; off < len(payload) || len(payload) == 0; off += chunkSize {
		end := off + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		id, buf := wg.AllocatePage(page.KindOverflowValue)
		p := page.Payload(buf)
		copy(p[overflowHeaderSize:], payload[off:end])
		pageIDs = append(pageIDs, id)
		wg.Put(id, buf)
		if end >= len(payload) {
			break
		}
	}

	for i, id := range pageIDs {
		buf, _ := lookupStaged(wg, id)
		if buf == nil {
			continue
		}
		var next uint64
		if i+1 < len(pageIDs) {
			next = pageIDs[i+1]
		}
		binary.BigEndian.PutUint64(page.Payload(buf)[0:8], next)
		wg.Put(id, buf)
	}

	return VRef{
		StartPage: firstOrZero(pageIDs),
		NPages:    uint32(len(pageIDs)),
		ByteLen:   uint32(len(payload)),
		CRC32:     sum,
	}
}

// lookupStaged re-fetches a page this same call just allocated, to patch in
// its chain-next pointer after the fact (AllocatePage hands back a buffer
// before the next page id is known).
func lookupStaged(wg writeGuard, id uint64) ([]byte, error) {
	type getter interface {
		GetPage(uint64) ([]byte, error)
	}
	if g, ok := wg.(getter); ok {
		return g.GetPage(id)
	}
	return nil, fmt.Errorf("record: write guard cannot re-read a staged page")
}

func firstOrZero(ids []uint64) uint64 {
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}

// ReadValue walks ref's OverflowValue chain, concatenates the compressed
// bytes, decompresses, and verifies the checksum (§4.5 "Reads verify
// VRef.checksum against the reconstructed payload").
func ReadValue(rg readGuard, pageSize uint32, ref VRef) ([]byte, error) {
	if ref.NPages == 0 {
		return nil, errs.New(errs.Invalid, "record.ReadValue", fmt.Errorf("empty VRef"))
	}
	compressed := make([]byte, 0, ref.ByteLen)
	id := ref.StartPage
	for i := uint32(0); i < ref.NPages; i++ {
		buf, err := rg.GetPage(id)
		if err != nil {
			return nil, err
		}
		p := page.Payload(buf)
		next := binary.BigEndian.Uint64(p[0:8])
		remaining := int(ref.ByteLen) - len(compressed)
		chunkCap := len(p) - overflowHeaderSize
		n := chunkCap
		if remaining < n {
			n = remaining
		}
		if n > 0 {
			compressed = append(compressed, p[overflowHeaderSize:overflowHeaderSize+n]...)
		}
		id = next
	}
	if uint32(len(compressed)) != ref.ByteLen {
		return nil, errs.New(errs.Corruption, "record.ReadValue", fmt.Errorf("overflow chain short read: want %d got %d", ref.ByteLen, len(compressed)))
	}
	data, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errs.New(errs.Corruption, "record.ReadValue", err)
	}
	if page.Checksum(0, 0, data) != ref.CRC32 {
		return nil, errs.New(errs.Corruption, "record.ReadValue", fmt.Errorf("vref checksum mismatch"))
	}
	return data, nil
}
