// ABOUTME: Edge record encoding: src|dst|type plus properties (§3, §4.5)

package record

import (
	"encoding/binary"
	"fmt"
)

// Edge is the logical payload of one edge version.
type Edge struct {
	Src   uint64
	Dst   uint64
	Type  uint32
	Props []Prop
}

// EncodeEdge serializes e into raw payload bytes.
func EncodeEdge(e Edge) []byte {
	buf := make([]byte, 0, 20+16)
	var hdr [20]byte
	binary.BigEndian.PutUint64(hdr[0:8], e.Src)
	binary.BigEndian.PutUint64(hdr[8:16], e.Dst)
	binary.BigEndian.PutUint32(hdr[16:20], e.Type)
	buf = append(buf, hdr[:]...)
	return EncodeProps(buf, e.Props)
}

// DecodeEdge reverses EncodeEdge.
func DecodeEdge(buf []byte) (Edge, error) {
	if len(buf) < 20 {
		return Edge{}, fmt.Errorf("record: truncated edge header")
	}
	e := Edge{
		Src:  binary.BigEndian.Uint64(buf[0:8]),
		Dst:  binary.BigEndian.Uint64(buf[8:16]),
		Type: binary.BigEndian.Uint32(buf[16:20]),
	}
	props, _, err := DecodeProps(buf[20:])
	if err != nil {
		return Edge{}, err
	}
	e.Props = props
	return e, nil
}
