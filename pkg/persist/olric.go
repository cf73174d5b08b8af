package persist

import (
	"context"
	"time"

	"github.com/fxamacker/cbor/v2"
	olriclib "github.com/olric-data/olric"

	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
)

const (
	olricDMap      = "cogmesh-persisted"
	olricLockLease = 5 * time.Second
)

// OlricStore keeps records in a DMap of an Olric cluster.
type OlricStore struct {
	client *olriclib.ClusterClient
	dm     olriclib.DMap
}

// olricRecord is the value stored under each topic key.
type olricRecord struct {
	Data     []byte `cbor:"1,keyasint"`
	Origin   string `cbor:"2,keyasint"`
	StoredAt int64  `cbor:"3,keyasint"`
}

// OpenOlric connects to the Olric cluster reachable at servers.
func OpenOlric(servers []string) (*OlricStore, error) {
	if len(servers) == 0 {
		servers = []string{"localhost:3320"}
	}
	client, err := olriclib.NewClusterClient(servers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Olric cluster client")
	}
	dm, err := client.NewDMap(olricDMap)
	if err != nil {
		_ = client.Close(context.Background())
		return nil, errors.Wrapf(err, "failed to open DMap %s", olricDMap)
	}
	return &OlricStore{client: client, dm: dm}, nil
}

// Save replaces the record for rec.Topic unless the stored one is newer.
// The key is locked for the read-compare-write.
func (s *OlricStore) Save(ctx context.Context, rec Record) error {
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now()
	}

	lock, err := s.dm.Lock(ctx, lockKey(rec.Topic), olricLockLease)
	if err != nil {
		return errors.Wrapf(err, "failed to lock %s", rec.Topic)
	}
	defer func() { _ = lock.Unlock(context.Background()) }()

	current, ok, err := s.Load(ctx, rec.Topic)
	if err != nil {
		return err
	}
	if ok && current.StoredAt.After(rec.StoredAt) {
		return nil
	}

	value, err := encodeOlricRecord(rec)
	if err != nil {
		return err
	}
	if err := s.dm.Put(ctx, rec.Topic, value); err != nil {
		return errors.Wrapf(err, "failed to save payload for %s", rec.Topic)
	}
	return nil
}

// Load returns the record for topic, if any.
func (s *OlricStore) Load(ctx context.Context, topic string) (Record, bool, error) {
	gr, err := s.dm.Get(ctx, topic)
	if errors.Is(err, olriclib.ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Wrapf(err, "failed to load payload for %s", topic)
	}
	var value []byte
	if err := gr.Scan(&value); err != nil {
		return Record{}, false, errors.Wrapf(err, "failed to read payload for %s", topic)
	}
	rec, err := decodeOlricRecord(topic, value)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Close closes the cluster client.
func (s *OlricStore) Close() error {
	return s.client.Close(context.Background())
}

func lockKey(topic string) string { return "lock:" + topic }

func encodeOlricRecord(rec Record) ([]byte, error) {
	value, err := cbor.Marshal(olricRecord{
		Data:     rec.Data,
		Origin:   rec.Origin,
		StoredAt: rec.StoredAt.UnixMilli(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode payload for %s", rec.Topic)
	}
	return value, nil
}

func decodeOlricRecord(topic string, value []byte) (Record, error) {
	var r olricRecord
	if err := cbor.Unmarshal(value, &r); err != nil {
		return Record{}, errors.Wrapf(err, "corrupt payload for %s", topic)
	}
	return Record{
		Topic:    topic,
		Data:     r.Data,
		Origin:   r.Origin,
		StoredAt: time.UnixMilli(r.StoredAt),
	}, nil
}
