package cache

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// EncodeSnapshot is the wire form used by the durable backends.
func EncodeSnapshot(snapshot Snapshot) ([]byte, error) {
	data, err := msgpack.Marshal(&snapshot)
	if err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}
	return data, nil
}

func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snapshot Snapshot
	if err := msgpack.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, errors.Wrap(err, "decode snapshot")
	}
	return snapshot, nil
}
