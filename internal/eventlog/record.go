package eventlog

import (
	"encoding/binary"
	"hash/crc32"
)

// Record encoding: uvarint(len(header)) | header | payload | crc32c(header|payload)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func checksum(header, payload []byte) uint32 {
	return crc32.Update(crc32.Update(0, castagnoli, header), castagnoli, payload)
}

// EncodeRecord frames header and payload with a length prefix and checksum.
func EncodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, binary.MaxVarintLen64+len(header)+len(payload)+4)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)
	return binary.BigEndian.AppendUint32(out, checksum(header, payload))
}

type Decoded struct {
	Header  []byte
	Payload []byte
}

// DecodeRecord reverses EncodeRecord, reporting false on truncation or a
// checksum mismatch. The returned slices are copies.
func DecodeRecord(b []byte) (Decoded, bool) {
	if len(b) < 1+4 {
		return Decoded{}, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)-n-4) < hlen {
		return Decoded{}, false
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	if checksum(header, payload) != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return Decoded{}, false
	}
	return Decoded{Header: append([]byte(nil), header...), Payload: append([]byte(nil), payload...)}, true
}
