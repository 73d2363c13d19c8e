package storage

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Key prefixes, single byte for efficiency — same idiom as the
// teacher's prefixNode/prefixEdge/... constants in pkg/storage/badger.go,
// extended with separate edge-label and vector tables (spec.md §4.1).
const (
	prefixNode       = byte(0x01) // node_id -> node record
	prefixEdge       = byte(0x02) // edge_id -> edge record
	prefixNodeLabel  = byte(0x03) // H(label) || node_id -> empty
	prefixEdgeLabel  = byte(0x04) // H(label) || edge_id -> empty
	prefixOutEdges   = byte(0x05) // from_id || H(label) || edge_id -> to_id
	prefixInEdges    = byte(0x06) // to_id || H(label) || edge_id -> from_id
	prefixSecIndex   = byte(0x07) // H(indexName) || encoded(value) -> node_id
	prefixVector     = byte(0x08) // vector_id -> vector record
	prefixVecLevel   = byte(0x09) // level || vector_id -> neighbor id list
	prefixEntryPoint = byte(0x0A) // singleton key -> entry point id + level
	prefixBM25Doc    = byte(0x0B) // H(label) || term || node_id -> term frequency
	prefixBM25Stats  = byte(0x0C) // H(label) -> doc count + total length
)

// labelHash is the fixed-width 4-byte hash used as a key-prefix
// component (spec.md §4.1: "H(label) is a fixed-length 4-byte hash
// (XxHash32). Collisions are tolerated: post-lookup confirmation
// against the entity record resolves.").
//
// xxhash/v2 (already an indirect dependency of the teacher's stack via
// BadgerDB) only exposes a 64-bit digest; this truncates to the low 4
// bytes, which is sufficient since every lookup re-confirms against the
// stored label string (design note: "Never rely on the hash value
// outside adjacency keys.").
func labelHash(label string) [4]byte {
	sum := xxhash.Sum64String(label)
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], uint32(sum))
	return out
}

func nodeKey(id ID) []byte {
	k := make([]byte, 0, 17)
	k = append(k, prefixNode)
	return append(k, id.Bytes()...)
}

func edgeKey(id ID) []byte {
	k := make([]byte, 0, 17)
	k = append(k, prefixEdge)
	return append(k, id.Bytes()...)
}

func nodeLabelKey(label string, id ID) []byte {
	h := labelHash(label)
	k := make([]byte, 0, 21)
	k = append(k, prefixNodeLabel)
	k = append(k, h[:]...)
	return append(k, id.Bytes()...)
}

func nodeLabelPrefix(label string) []byte {
	h := labelHash(label)
	return append([]byte{prefixNodeLabel}, h[:]...)
}

func edgeLabelKey(label string, id ID) []byte {
	h := labelHash(label)
	k := make([]byte, 0, 21)
	k = append(k, prefixEdgeLabel)
	k = append(k, h[:]...)
	return append(k, id.Bytes()...)
}

func edgeLabelPrefix(label string) []byte {
	h := labelHash(label)
	return append([]byte{prefixEdgeLabel}, h[:]...)
}

// outEdgeKey and inEdgeKey implement the DUPSORT adjacency rows from
// spec.md §4.1 by folding the duplicate-discriminating edge id into
// the key itself — BadgerDB has no native multi-value key, so this
// generalizes the teacher's own outgoingIndexKey/incomingIndexKey
// (nodeID + 0x00 + edgeID) by inserting a label-hash segment between
// the endpoint id and the edge id.
func outEdgeKey(from ID, label string, edge ID) []byte {
	h := labelHash(label)
	k := make([]byte, 0, 37)
	k = append(k, prefixOutEdges)
	k = append(k, from.Bytes()...)
	k = append(k, h[:]...)
	return append(k, edge.Bytes()...)
}

func outEdgePrefixAll(from ID) []byte {
	k := make([]byte, 0, 17)
	k = append(k, prefixOutEdges)
	return append(k, from.Bytes()...)
}

func outEdgePrefixLabel(from ID, label string) []byte {
	h := labelHash(label)
	k := make([]byte, 0, 21)
	k = append(k, prefixOutEdges)
	k = append(k, from.Bytes()...)
	return append(k, h[:]...)
}

// Open Question 2 (spec.md §9): the source's in_edges iterators
// sometimes reused the out-edge key builder by mistake. inEdgeKey is
// kept as its own function, distinct from outEdgeKey, specifically so
// that mistake cannot recur here.
func inEdgeKey(to ID, label string, edge ID) []byte {
	h := labelHash(label)
	k := make([]byte, 0, 37)
	k = append(k, prefixInEdges)
	k = append(k, to.Bytes()...)
	k = append(k, h[:]...)
	return append(k, edge.Bytes()...)
}

func inEdgePrefixAll(to ID) []byte {
	k := make([]byte, 0, 17)
	k = append(k, prefixInEdges)
	return append(k, to.Bytes()...)
}

func inEdgePrefixLabel(to ID, label string) []byte {
	h := labelHash(label)
	k := make([]byte, 0, 21)
	k = append(k, prefixInEdges)
	k = append(k, to.Bytes()...)
	return append(k, h[:]...)
}

// extractTailID reads the last 16 bytes of a key — the edge id suffix
// shared by outEdgeKey/inEdgeKey.
func extractTailID(key []byte) ID {
	if len(key) < 16 {
		return NilID
	}
	return IDFromBytes(key[len(key)-16:])
}

func secondaryIndexKey(indexName string, value Value) []byte {
	h := labelHash(indexName)
	k := make([]byte, 0, 4+8)
	k = append(k, h[:]...)
	return append(k, encodeIndexValue(value)...)
}

func secondaryIndexDBKey(indexName string, value Value) []byte {
	k := make([]byte, 0, 1+4+8)
	k = append(k, prefixSecIndex)
	return append(k, secondaryIndexKey(indexName, value)...)
}

func vectorKey(id ID) []byte {
	k := make([]byte, 0, 17)
	k = append(k, prefixVector)
	return append(k, id.Bytes()...)
}

func vectorLevelKey(level uint8, id ID) []byte {
	k := make([]byte, 0, 18)
	k = append(k, prefixVecLevel, level)
	return append(k, id.Bytes()...)
}

func entryPointKey() []byte { return []byte{prefixEntryPoint} }

func bm25DocKey(label, term string, id ID) []byte {
	h := labelHash(label)
	k := make([]byte, 0, 5+len(term)+16)
	k = append(k, prefixBM25Doc)
	k = append(k, h[:]...)
	k = append(k, []byte(term)...)
	k = append(k, 0x00)
	return append(k, id.Bytes()...)
}

func bm25DocPrefix(label, term string) []byte {
	h := labelHash(label)
	k := make([]byte, 0, 5+len(term))
	k = append(k, prefixBM25Doc)
	k = append(k, h[:]...)
	k = append(k, []byte(term)...)
	return append(k, 0x00)
}

func bm25StatsKey(label string) []byte {
	h := labelHash(label)
	return append([]byte{prefixBM25Stats}, h[:]...)
}
