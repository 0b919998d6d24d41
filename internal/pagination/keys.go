package pagination

import (
	"encoding/binary"

	"github.com/rzbill/ldes/internal/fragment"
)

// Keyspace (view names never contain NUL):
// - pg/{view}\x00b/{bucket_be8}/{seq_be8}  page record (JSON)
// - pg/{view}\x00o/{bucket_be8}            sequence of the open page
// - pg/{view}\x00i/{page_be8}              bucket_be8|seq_be8 by page id
// - pg/{view}\x00s/{bucket_be8}            page sequence counter
// - pg#id                                  page id counter
// - pa/{view}\x00{page_be8}/{index_be8}    page assignment (JSON)

var pageIDCounterKey = []byte("pg#id")

func viewScope(tag string, view fragment.ViewName) []byte {
	v := view.String()
	k := make([]byte, 0, len(tag)+len(v)+24)
	k = append(k, tag...)
	k = append(k, '/')
	k = append(k, v...)
	return append(k, 0)
}

func be8(dst []byte, v int64) []byte { return binary.BigEndian.AppendUint64(dst, uint64(v)) }

func pageViewPrefix(view fragment.ViewName) []byte { return viewScope("pg", view) }

func pageBucketPrefix(view fragment.ViewName, bucketID int64) []byte {
	return append(be8(append(pageViewPrefix(view), "b/"...), bucketID), '/')
}

func pageKey(view fragment.ViewName, bucketID, seq int64) []byte {
	return be8(pageBucketPrefix(view, bucketID), seq)
}

func openPageKey(view fragment.ViewName, bucketID int64) []byte {
	return be8(append(pageViewPrefix(view), "o/"...), bucketID)
}

func pageIDKey(view fragment.ViewName, id int64) []byte {
	return be8(append(pageViewPrefix(view), "i/"...), id)
}

func sequenceKey(view fragment.ViewName, bucketID int64) []byte {
	return be8(append(pageViewPrefix(view), "s/"...), bucketID)
}

func assignmentViewPrefix(view fragment.ViewName) []byte { return viewScope("pa", view) }

func assignmentPagePrefix(view fragment.ViewName, pageID int64) []byte {
	return append(be8(assignmentViewPrefix(view), pageID), '/')
}

func assignmentKey(a PageAssignment) []byte {
	return be8(assignmentPagePrefix(a.View, a.PageID), int64(a.Index))
}
