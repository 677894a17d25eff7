// Package statestore persists one record per container so a restarted
// daemon can rehydrate its registry. Records live in a single bbolt bucket
// keyed by container id; a record that fails to decode poisons only
// itself.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vesselrun/vessel/configs"
	"github.com/vesselrun/vessel/network"
)

var (
	bucketContainers = []byte("containers")

	// ErrNotFound means no record exists for the id.
	ErrNotFound = errors.New("statestore: record not found")
)

// Record is the persisted shape of one container.
type Record struct {
	ID     string        `json:"id"`
	Spec   *configs.Spec `json:"spec"`
	Status string        `json:"status"`

	Pid int `json:"pid"`

	// InitStartTime is the /proc start-time tick of the init process,
	// captured at start. A record claiming RUNNING is only trusted if a
	// live process with the same pid and start time exists.
	InitStartTime string `json:"init_start_time,omitempty"`

	CgroupPath string         `json:"cgroup_path,omitempty"`
	Profile    string         `json:"profile,omitempty"`
	Network    *network.State `json:"network,omitempty"`

	ExitCode   int  `json:"exit_code"`
	ExitSignal int  `json:"exit_signal"`
	OOMKilled  bool `json:"oom_killed,omitempty"`
	Exited     bool `json:"exited"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

type Store struct {
	db *bolt.DB
}

// Open creates or opens the store file.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("statestore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketContainers)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the record, replacing any previous one for the id.
func (s *Store) Save(r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).Put([]byte(r.ID), data)
	})
}

func (s *Store) Get(id string) (*Record, error) {
	var r *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketContainers).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		r = &Record{}
		return json.Unmarshal(data, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).Delete([]byte(id))
	})
}

// List returns every decodable record plus the ids of records that failed
// to decode, so the caller can isolate the damage instead of refusing to
// start.
func (s *Store) List() ([]*Record, []string, error) {
	var (
		records []*Record
		corrupt []string
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).ForEach(func(k, v []byte) error {
			r := &Record{}
			if err := json.Unmarshal(v, r); err != nil || r.ID == "" {
				corrupt = append(corrupt, string(k))
				return nil
			}
			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return records, corrupt, nil
}
