// ABOUTME: Node record encoding: sorted/deduped label_ids plus properties
// ABOUTME: (§3 "Record", §4.5 "Encoding")

package record

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Node is the logical payload of one node version: its label set and
// properties. It never carries its id, create_ts, or delete_ts — those
// live in the surrounding version header (§3 "Version chain").
type Node struct {
	Labels []uint32
	Props  []Prop
}

// sortedDedupedLabels returns labels sorted ascending with duplicates
// removed, per §3's "label_ids (sorted, deduped)".
func sortedDedupedLabels(labels []uint32) []uint32 {
	out := append([]uint32(nil), labels...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	deduped := out[:0]
	for i, l := range out {
		if i > 0 && out[i-1] == l {
			continue
		}
		deduped = append(deduped, l)
	}
	return deduped
}

// EncodeNode serializes n into the raw payload bytes stored inline or
// spilled to the VStore (the caller decides which based on length).
func EncodeNode(n Node) []byte {
	labels := sortedDedupedLabels(n.Labels)
	buf := make([]byte, 0, 2+4*len(labels)+16)
	var nl [2]byte
	binary.BigEndian.PutUint16(nl[:], uint16(len(labels)))
	buf = append(buf, nl[:]...)
	for _, l := range labels {
		var lb [4]byte
		binary.BigEndian.PutUint32(lb[:], l)
		buf = append(buf, lb[:]...)
	}
	return EncodeProps(buf, n.Props)
}

// DecodeNode reverses EncodeNode.
func DecodeNode(buf []byte) (Node, error) {
	if len(buf) < 2 {
		return Node{}, fmt.Errorf("record: truncated node label count")
	}
	nl := binary.BigEndian.Uint16(buf[:2])
	buf = buf[2:]
	if len(buf) < int(nl)*4 {
		return Node{}, fmt.Errorf("record: truncated node labels")
	}
	labels := make([]uint32, nl)
	for i := range labels {
		labels[i] = binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
	}
	props, _, err := DecodeProps(buf)
	if err != nil {
		return Node{}, err
	}
	return Node{Labels: labels, Props: props}, nil
}

// HasLabel reports whether id is present in n's (sorted) label set.
func (n Node) HasLabel(id uint32) bool {
	for _, l := range n.Labels {
		if l == id {
			return true
		}
	}
	return false
}
