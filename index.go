package chunkcache

import (
	"cmp"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// itemEntry describes the newest version of an item.
type itemEntry struct {
	seq       uint64
	written   time.Time
	total     uint32
	size      uint64
	busterTag uint32
	// present holds the chunk indexes of this version known to be stored.
	present *roaring.Bitmap
}

func (e *itemEntry) complete() bool {
	return e.present.GetCardinality() == uint64(e.total)
}

// rangeBitmap returns the set {0, ..., n-1}.
func rangeBitmap(n uint32) *roaring.Bitmap {
	bm := roaring.New()
	bm.AddRange(0, uint64(n))
	return bm
}

// chunkRef names one stored chunk for eviction ordering.
type chunkRef struct {
	item  string
	seq   uint64
	index uint32
}

// chunkIndex is the in-memory view of the namespace. It is not safe for
// concurrent use; Cache guards it with its mutex.
type chunkIndex struct {
	items map[string]*itemEntry
	// orphans are stored chunks that belong to no live version, e.g.
	// leftovers of an interrupted write.
	orphans map[string]*roaring.Bitmap
	seq     uint64
}

func newChunkIndex() *chunkIndex {
	return &chunkIndex{
		items:   make(map[string]*itemEntry),
		orphans: make(map[string]*roaring.Bitmap),
	}
}

func (x *chunkIndex) nextSeq() uint64 {
	x.seq++
	return x.seq
}

// count returns the number of stored chunks including orphans.
func (x *chunkIndex) count() int {
	var n uint64
	for _, e := range x.items {
		n += e.present.GetCardinality()
	}
	for _, bm := range x.orphans {
		n += bm.GetCardinality()
	}
	return int(n)
}

func (x *chunkIndex) addOrphan(item string, index uint32) {
	bm, ok := x.orphans[item]
	if !ok {
		bm = roaring.New()
		x.orphans[item] = bm
	}
	bm.Add(index)
}

func (x *chunkIndex) removeOrphan(item string, index uint32) {
	if bm, ok := x.orphans[item]; ok {
		bm.Remove(index)
		if bm.IsEmpty() {
			delete(x.orphans, item)
		}
	}
}

// stale returns the chunk indexes stored for item outside [0,total): chunks
// of the previous version and orphans that a new version of the given size
// does not overwrite.
func (x *chunkIndex) stale(item string, total uint32) []uint32 {
	acc := roaring.New()
	if e, ok := x.items[item]; ok {
		acc.Or(e.present)
	}
	if bm, ok := x.orphans[item]; ok {
		acc.Or(bm)
	}
	acc.RemoveRange(0, uint64(total))
	return acc.ToArray()
}

// install records a fully written version and drops every orphan of item
// below total, since those blobs were overwritten.
func (x *chunkIndex) install(item string, e *itemEntry) {
	x.items[item] = e
	if bm, ok := x.orphans[item]; ok {
		bm.RemoveRange(0, uint64(e.total))
		if bm.IsEmpty() {
			delete(x.orphans, item)
		}
	}
	if e.seq > x.seq {
		x.seq = e.seq
	}
}

// drop forgets item and records its chunks as orphans. It is used when a
// write failed half way and the stored chunks are of unknown version.
func (x *chunkIndex) drop(item string, written []uint32) {
	if e, ok := x.items[item]; ok {
		it := e.present.Iterator()
		for it.HasNext() {
			x.addOrphan(item, it.Next())
		}
		delete(x.items, item)
	}
	for _, i := range written {
		x.addOrphan(item, i)
	}
}

// evictable returns the chunks of live items ordered oldest first by write
// sequence, then chunk index.
func (x *chunkIndex) evictable() []chunkRef {
	var refs []chunkRef
	for id, e := range x.items {
		it := e.present.Iterator()
		for it.HasNext() {
			refs = append(refs, chunkRef{item: id, seq: e.seq, index: it.Next()})
		}
	}
	slices.SortFunc(refs, func(a, b chunkRef) int {
		if c := cmp.Compare(a.seq, b.seq); c != 0 {
			return c
		}
		if c := cmp.Compare(a.index, b.index); c != 0 {
			return c
		}
		return cmp.Compare(a.item, b.item)
	})
	return refs
}

func (x *chunkIndex) reset() {
	clear(x.items)
	clear(x.orphans)
	x.seq = 0
}

// indexBuilder folds chunk headers found in the store into a chunkIndex.
type indexBuilder struct {
	idx    *chunkIndex
	heads  map[string][]indexedHeader
	broken map[string][]uint32
}

type indexedHeader struct {
	index uint32
	h     *chunkHeader
}

func newIndexBuilder() *indexBuilder {
	return &indexBuilder{
		idx:    newChunkIndex(),
		heads:  make(map[string][]indexedHeader),
		broken: make(map[string][]uint32),
	}
}

// add records the header of the chunk stored at (item, index). A nil header
// marks an unreadable chunk.
func (b *indexBuilder) add(item string, index uint32, h *chunkHeader) {
	if h == nil || h.Index != index {
		b.broken[item] = append(b.broken[item], index)
		return
	}
	b.heads[item] = append(b.heads[item], indexedHeader{index: index, h: h})
}

// build picks the newest version of every item. Chunks of older versions and
// unreadable chunks become orphans.
func (b *indexBuilder) build() *chunkIndex {
	for item, hs := range b.heads {
		var newest *chunkHeader
		for _, ih := range hs {
			if newest == nil || ih.h.Seq > newest.Seq {
				newest = ih.h
			}
		}

		e := &itemEntry{
			seq:       newest.Seq,
			written:   newest.writtenAt(),
			total:     newest.Total,
			size:      newest.ItemSize,
			busterTag: newest.BusterTag,
			present:   roaring.New(),
		}
		for _, ih := range hs {
			if ih.h.Seq == newest.Seq && ih.h.Total == newest.Total {
				e.present.Add(ih.index)
			} else {
				b.idx.addOrphan(item, ih.index)
			}
		}
		b.idx.items[item] = e
		if e.seq > b.idx.seq {
			b.idx.seq = e.seq
		}
	}
	for item, indexes := range b.broken {
		for _, i := range indexes {
			b.idx.addOrphan(item, i)
		}
	}
	return b.idx
}
