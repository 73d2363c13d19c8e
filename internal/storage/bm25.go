package storage

import (
	"encoding/binary"
	"math"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/suxatcode/helix-db-sub002/internal/herr"
)

// BM25 scoring constants, the conventional Okapi defaults also used by
// original_source/'s full-text index.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// tokenize lower-cases and splits on anything that is not a letter or
// digit — a minimal tokenizer sufficient for the BM25 scoring scheme;
// HelixQL's own text-analysis pipeline is out of scope (spec.md
// Non-goals).
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

type bm25Stats struct {
	DocCount   uint64
	TotalTerms uint64
}

func encodeBM25Stats(s bm25Stats) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], s.DocCount)
	binary.BigEndian.PutUint64(buf[8:], s.TotalTerms)
	return buf
}

func decodeBM25Stats(data []byte) bm25Stats {
	return bm25Stats{
		DocCount:   binary.BigEndian.Uint64(data[:8]),
		TotalTerms: binary.BigEndian.Uint64(data[8:]),
	}
}

// IndexBM25Document tokenizes text and records its per-term
// frequencies under label's BM25 table, updating the label's corpus
// statistics (spec.md §4.1 supplement: per-label full-text search).
func (w *WriteTxn) IndexBM25Document(label string, id ID, text string) error {
	terms := tokenize(text)
	if len(terms) == 0 {
		return nil
	}
	freq := make(map[string]uint32, len(terms))
	for _, t := range terms {
		freq[t]++
	}
	for term, count := range freq {
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, count)
		if err := w.txn.Set(bm25DocKey(label, term, id), buf); err != nil {
			return herr.Wrap(herr.KindStorage, "index bm25 term", err)
		}
	}

	stats, err := w.bm25Stats(label)
	if err != nil {
		return err
	}
	stats.DocCount++
	stats.TotalTerms += uint64(len(terms))
	if err := w.txn.Set(bm25StatsKey(label), encodeBM25Stats(stats)); err != nil {
		return herr.Wrap(herr.KindStorage, "update bm25 stats", err)
	}
	return nil
}

func (r *ReadTxn) bm25Stats(label string) (bm25Stats, error) {
	item, err := r.txn.Get(bm25StatsKey(label))
	if err == badger.ErrKeyNotFound {
		return bm25Stats{}, nil
	}
	if err != nil {
		return bm25Stats{}, herr.Wrap(herr.KindStorage, "get bm25 stats", err)
	}
	var stats bm25Stats
	verr := item.Value(func(val []byte) error {
		stats = decodeBM25Stats(val)
		return nil
	})
	return stats, verr
}

// BM25Hit is one scored match from SearchBM25.
type BM25Hit struct {
	Node  *Node
	Score float64
}

// SearchBM25 scores every node tagged with label against the query's
// terms using Okapi BM25, scoped to that label's own corpus statistics
// (Open Question 4: per-label scoping, resolved per spec). Ties are
// broken by ascending node id.
func (r *ReadTxn) SearchBM25(label, query string, limit int) ([]BM25Hit, error) {
	stats, err := r.bm25Stats(label)
	if err != nil {
		return nil, err
	}
	if stats.DocCount == 0 {
		return nil, nil
	}
	avgDocLen := float64(stats.TotalTerms) / float64(stats.DocCount)

	scores := make(map[ID]float64)
	for _, term := range tokenize(query) {
		hits, err := r.bm25TermPostings(label, term)
		if err != nil {
			return nil, err
		}
		df := float64(len(hits))
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(stats.DocCount)-df+0.5)/(df+0.5))
		for id, tf := range hits {
			docLen, err := r.bm25DocLength(label, id)
			if err != nil {
				return nil, err
			}
			num := tf * (bm25K1 + 1)
			den := tf + bm25K1*(1-bm25B+bm25B*docLen/avgDocLen)
			scores[id] += idf * num / den
		}
	}

	hits := make([]BM25Hit, 0, len(scores))
	for id, score := range scores {
		node, err := r.GetNode(id)
		if err != nil {
			if herr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		hits = append(hits, BM25Hit{Node: node, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Node.ID.String() < hits[j].Node.ID.String()
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (r *ReadTxn) bm25TermPostings(label, term string) (map[ID]float64, error) {
	prefix := bm25DocPrefix(label, term)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := r.txn.NewIterator(opts)
	defer it.Close()

	out := make(map[ID]float64)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		id := extractTailID(item.KeyCopy(nil))
		err := item.Value(func(val []byte) error {
			out[id] = float64(binary.BigEndian.Uint32(val))
			return nil
		})
		if err != nil {
			return nil, herr.Wrap(herr.KindStorage, "read bm25 posting", err)
		}
	}
	return out, nil
}

// bm25DocLength sums the term frequencies recorded for id across every
// term row under label — there is no dedicated per-document length
// row, so this walks the node's own postings via the label's doc
// prefix scan once per scored document (documents are small relative
// to the corpus sizes this index targets).
func (r *ReadTxn) bm25DocLength(label string, id ID) (float64, error) {
	h := labelHash(label)
	prefix := append([]byte{prefixBM25Doc}, h[:]...)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := r.txn.NewIterator(opts)
	defer it.Close()

	var total float64
	suffix := id.Bytes()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if len(key) < 16 || string(key[len(key)-16:]) != string(suffix) {
			continue
		}
		if err := item.Value(func(val []byte) error {
			total += float64(binary.BigEndian.Uint32(val))
			return nil
		}); err != nil {
			return 0, herr.Wrap(herr.KindStorage, "read bm25 doc length", err)
		}
	}
	return total, nil
}
