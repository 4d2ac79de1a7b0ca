package model

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"
)

// Fingerprint is a content hash over the nodes reachable from a root.
type Fingerprint [sha1.Size]byte

func (f Fingerprint) String() string { return "model(" + hex.EncodeToString(f[:]) + ")" }

// FingerprintOf digests the model rooted at root. Two models share a
// fingerprint when their reachable nodes carry the same IDs, kinds and inputs,
// irrespective of where the nodes live in their arenas. References are hashed
// by the fingerprint of the referenced node.
func FingerprintOf(g *Graph, root Ref) Fingerprint {
	memo := make(map[Ref]Fingerprint)
	return fingerprint(g, root, memo)
}

func fingerprint(g *Graph, node Ref, memo map[Ref]Fingerprint) Fingerprint {
	if f, ok := memo[node]; ok {
		return f
	}
	h := sha1.New()
	n := g.Node(node)
	writeString(h, n.Kind)
	writeString(h, n.ID)
	for _, in := range n.Inputs {
		writeString(h, in.Name)
		writeInt(h, int64(in.Type))
		hashValue(h, g, in.Value, memo)
	}
	var f Fingerprint
	copy(f[:], h.Sum(nil))
	memo[node] = f
	return f
}

func hashValue(h hash.Hash, g *Graph, v Value, memo map[Ref]Fingerprint) {
	switch x := v.(type) {
	case nil:
		h.Write([]byte{0})
	case Scalar:
		h.Write([]byte{1})
		switch s := x.V.(type) {
		case bool:
			if s {
				writeInt(h, 1)
			} else {
				writeInt(h, 0)
			}
		case float32:
			writeInt(h, int64(math.Float64bits(float64(s))))
		case float64:
			writeInt(h, int64(math.Float64bits(s)))
		default:
			// integers of any width hash alike as long as their value fits
			writeString(h, fmt.Sprint(s))
		}
	case Text:
		h.Write([]byte{2})
		writeString(h, string(x))
	case Ref:
		h.Write([]byte{3})
		f := fingerprint(g, x, memo)
		h.Write(f[:])
	case List:
		h.Write([]byte{4})
		writeInt(h, int64(len(x)))
		for _, e := range x {
			hashValue(h, g, e, memo)
		}
	}
}

func writeString(h hash.Hash, s string) {
	writeInt(h, int64(len(s)))
	h.Write([]byte(s))
}

func writeInt(h hash.Hash, i int64) {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutVarint(buf, i)
	h.Write(buf[:n])
}
