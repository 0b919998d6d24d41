package fragmentation

import (
	"encoding/binary"

	"github.com/rzbill/ldes/internal/fragment"
)

// Keyspace (view names never contain NUL):
// - bkt/{view}\x00d/{descriptor}           bucket record (JSON)
// - bkt/{view}\x00i/{id_be8}               descriptor by bucket id
// - bkt#id                                 bucket id counter
// - mbr/{view}\x00p/{bucket_be8}/{seq_be8} pending bucketised member (JSON)
// - mbr/{view}\x00seq                      arrival counter

var bucketIDCounterKey = []byte("bkt#id")

func viewScope(tag string, view fragment.ViewName) []byte {
	v := view.String()
	k := make([]byte, 0, len(tag)+len(v)+2)
	k = append(k, tag...)
	k = append(k, '/')
	k = append(k, v...)
	return append(k, 0)
}

func bucketViewPrefix(view fragment.ViewName) []byte { return viewScope("bkt", view) }

func bucketKey(view fragment.ViewName, d Descriptor) []byte {
	k := append(bucketViewPrefix(view), "d/"...)
	return append(k, d.String()...)
}

func bucketDescriptorPrefix(view fragment.ViewName) []byte {
	return append(bucketViewPrefix(view), "d/"...)
}

func bucketIDKey(view fragment.ViewName, id int64) []byte {
	k := append(bucketViewPrefix(view), "i/"...)
	return binary.BigEndian.AppendUint64(k, uint64(id))
}

func memberViewPrefix(view fragment.ViewName) []byte { return viewScope("mbr", view) }

func memberSeqKey(view fragment.ViewName) []byte {
	return append(memberViewPrefix(view), "seq"...)
}

func pendingPrefix(view fragment.ViewName) []byte {
	return append(memberViewPrefix(view), "p/"...)
}

func pendingBucketPrefix(view fragment.ViewName, bucketID int64) []byte {
	k := binary.BigEndian.AppendUint64(pendingPrefix(view), uint64(bucketID))
	return append(k, '/')
}

// PendingKey addresses one pending bucketised member.
func PendingKey(m BucketisedMember) []byte {
	return binary.BigEndian.AppendUint64(pendingBucketPrefix(m.View, m.BucketID), m.Seq)
}
