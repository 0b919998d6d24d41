package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Envelope is one delivered event with its bus metadata.
type Envelope struct {
	ID    string
	Seq   uint64
	Time  time.Time
	Event Event
}

type wireEnvelope struct {
	ID   string          `json:"id"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

func decodeAs[T Event](data []byte) (Event, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

var decoders = map[Kind]func([]byte) (Event, error){
	KindBucketRelationCreated:  decodeAs[BucketRelationCreated],
	KindLinearCachingTriggered: decodeAs[LinearCachingTriggered],
	KindMemberBucketised:       decodeAs[MemberBucketised],
	KindNewViewBucketised:      decodeAs[NewViewBucketised],
	KindPageRelationCreated:    decodeAs[PageRelationCreated],
	KindViewInitialized:        decodeAs[ViewInitialized],
	KindViewDeleted:            decodeAs[ViewDeleted],
}

func encode(ev Event, now time.Time) ([]byte, []byte, error) {
	if _, ok := decoders[ev.Kind()]; !ok {
		return nil, nil, errors.Errorf("events: unknown kind %q", ev.Kind())
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "events: encode %s", ev.Kind())
	}
	payload, err := json.Marshal(wireEnvelope{ID: uuid.NewString(), Time: now.UTC(), Data: data})
	if err != nil {
		return nil, nil, err
	}
	return []byte(ev.Kind()), payload, nil
}

func decode(seq uint64, header, payload []byte) (Envelope, error) {
	kind := Kind(header)
	dec, ok := decoders[kind]
	if !ok {
		return Envelope{}, errors.Errorf("events: unknown kind %q at seq %d", kind, seq)
	}
	var w wireEnvelope
	if err := json.Unmarshal(payload, &w); err != nil {
		return Envelope{}, errors.Wrapf(err, "events: decode envelope at seq %d", seq)
	}
	ev, err := dec(w.Data)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "events: decode %s at seq %d", kind, seq)
	}
	return Envelope{ID: w.ID, Seq: seq, Time: w.Time, Event: ev}, nil
}
