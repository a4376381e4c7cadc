// Package storage persists pools and user positions in a local bbolt
// database. It implements the farming.State interface consumed by the
// registry and the settlement engine.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	bolt "go.etcd.io/bbolt"

	"yieldfarm/native/farming"
)

var (
	bucketPools     = []byte("pools")
	bucketPoolIndex = []byte("poolIndex")
	bucketPositions = []byte("positions")
)

// Store is a bbolt-backed farming state backend.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the database at path and prepares the buckets.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open farm store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketPools, bucketPoolIndex, bucketPositions} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare farm store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// poolRecord mirrors the persisted pool payload.
type poolRecord struct {
	ID          string   `json:"id"`
	StakeToken  string   `json:"stakeToken"`
	TotalStaked *big.Int `json:"totalStaked"`
	RewardRate  *big.Int `json:"rewardRatePerSecond"`
	LastUpdate  uint64   `json:"lastUpdate"`
	Accumulator *big.Int `json:"accRewardPerShare"`
	Active      bool     `json:"active"`
}

// positionRecord mirrors the persisted user position payload.
type positionRecord struct {
	StakedAmount *big.Int `json:"stakedAmount"`
	RewardDebt   *big.Int `json:"rewardDebt"`
	LastClaim    uint64   `json:"lastClaim"`
}

// PoolGet implements farming.State.
func (s *Store) PoolGet(id farming.PoolID) (*farming.Pool, bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if value := tx.Bucket(bucketPools).Get(id[:]); value != nil {
			raw = append([]byte(nil), value...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	var record poolRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, false, fmt.Errorf("decode pool %s: %w", id, err)
	}
	pool := &farming.Pool{
		ID:                  id,
		StakeToken:          record.StakeToken,
		TotalStaked:         record.TotalStaked,
		RewardRatePerSecond: record.RewardRate,
		LastUpdate:          record.LastUpdate,
		AccRewardPerShare:   record.Accumulator,
		Active:              record.Active,
	}
	return pool.Normalize(), true, nil
}

// PoolPut implements farming.State.
func (s *Store) PoolPut(pool *farming.Pool) error {
	if pool == nil {
		return fmt.Errorf("nil pool")
	}
	snapshot := pool.Clone().Normalize()
	raw, err := encodePool(snapshot)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPools).Put(snapshot.ID[:], raw)
	})
}

// PoolCreate implements farming.State. The pool record and its index slot
// land in the same transaction, so a crash cannot register a pool that the
// creation-order listing misses.
func (s *Store) PoolCreate(pool *farming.Pool) error {
	if pool == nil {
		return fmt.Errorf("nil pool")
	}
	snapshot := pool.Clone().Normalize()
	raw, err := encodePool(snapshot)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketPools).Put(snapshot.ID[:], raw); err != nil {
			return err
		}
		index := tx.Bucket(bucketPoolIndex)
		seq, err := index.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return index.Put(key[:], snapshot.ID[:])
	})
}

// PoolCommit implements farming.State. Pool and position are written in one
// transaction, keeping totalStaked consistent with the stored positions
// across crashes.
func (s *Store) PoolCommit(pool *farming.Pool, user [20]byte, position *farming.UserPosition) error {
	if pool == nil || position == nil {
		return fmt.Errorf("nil record")
	}
	poolSnapshot := pool.Clone().Normalize()
	rawPool, err := encodePool(poolSnapshot)
	if err != nil {
		return err
	}
	rawPosition, err := encodePosition(position.Clone().Normalize())
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketPools).Put(poolSnapshot.ID[:], rawPool); err != nil {
			return err
		}
		return tx.Bucket(bucketPositions).Put(positionKey(poolSnapshot.ID, user), rawPosition)
	})
}

// PoolIDs implements farming.State. Identifiers come back in creation order,
// which the index bucket preserves through monotonically increasing keys.
func (s *Store) PoolIDs() ([]farming.PoolID, error) {
	var ids []farming.PoolID
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPoolIndex).ForEach(func(_, value []byte) error {
			if len(value) != 32 {
				return fmt.Errorf("corrupt pool index entry of %d bytes", len(value))
			}
			var id farming.PoolID
			copy(id[:], value)
			ids = append(ids, id)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// PositionGet implements farming.State. Users without a stored record get a
// zero-valued position.
func (s *Store) PositionGet(id farming.PoolID, user [20]byte) (*farming.UserPosition, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if value := tx.Bucket(bucketPositions).Get(positionKey(id, user)); value != nil {
			raw = append([]byte(nil), value...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return (&farming.UserPosition{}).Normalize(), nil
	}
	var record positionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode position: %w", err)
	}
	position := &farming.UserPosition{
		StakedAmount: record.StakedAmount,
		RewardDebt:   record.RewardDebt,
		LastClaim:    record.LastClaim,
	}
	return position.Normalize(), nil
}

// PositionPut implements farming.State.
func (s *Store) PositionPut(id farming.PoolID, user [20]byte, position *farming.UserPosition) error {
	if position == nil {
		return fmt.Errorf("nil position")
	}
	raw, err := encodePosition(position.Clone().Normalize())
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPositions).Put(positionKey(id, user), raw)
	})
}

func encodePool(pool *farming.Pool) ([]byte, error) {
	raw, err := json.Marshal(poolRecord{
		ID:          pool.ID.String(),
		StakeToken:  pool.StakeToken,
		TotalStaked: pool.TotalStaked,
		RewardRate:  pool.RewardRatePerSecond,
		LastUpdate:  pool.LastUpdate,
		Accumulator: pool.AccRewardPerShare,
		Active:      pool.Active,
	})
	if err != nil {
		return nil, fmt.Errorf("encode pool %s: %w", pool.ID, err)
	}
	return raw, nil
}

func encodePosition(position *farming.UserPosition) ([]byte, error) {
	raw, err := json.Marshal(positionRecord{
		StakedAmount: position.StakedAmount,
		RewardDebt:   position.RewardDebt,
		LastClaim:    position.LastClaim,
	})
	if err != nil {
		return nil, fmt.Errorf("encode position: %w", err)
	}
	return raw, nil
}

func positionKey(id farming.PoolID, user [20]byte) []byte {
	key := make([]byte, 0, len(id)+len(user))
	key = append(key, id[:]...)
	key = append(key, user[:]...)
	return key
}
