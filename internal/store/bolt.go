package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/campaignhub/internal/models"
)

var (
	bucketCampaigns = []byte("campaigns")
	bucketSendIndex = []byte("send_time_index")
	bucketIndexKeys = []byte("index_keys")
)

// BoltStore keeps campaigns in a bbolt file.
//
// campaigns:        region \x00 id          -> JSON payload
// send_time_index:  send_time \x00 region \x00 id -> region \x00 id
// index_keys:       region \x00 id          -> send_time_index key
type BoltStore struct {
	db      *bolt.DB
	maxRows int
	logger  *slog.Logger
	now     func() time.Time
}

func NewBolt(path string, maxRows int, logger *slog.Logger) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCampaigns, bucketSendIndex, bucketIndexKeys} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{
		db:      db,
		maxRows: maxRowsOrDefault(maxRows),
		logger:  logger.With("component", "store", "backend", "bolt"),
		now:     time.Now,
	}, nil
}

func primaryKey(region, id string) []byte {
	return []byte(region + "\x00" + id)
}

func sendIndexKey(sendTime time.Time, region, id string) []byte {
	return []byte(formatSendTime(sendTime) + "\x00" + region + "\x00" + id)
}

func regionOf(pk []byte) string {
	if i := bytes.IndexByte(pk, 0); i >= 0 {
		return string(pk[:i])
	}
	return string(pk)
}

func (s *BoltStore) Upsert(ctx context.Context, region string, records []models.CampaignRecord) error {
	now := s.now()
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := stamp(r, region, now)
		payload, err := encodeRecord(&rec)
		if err != nil {
			return err
		}

		err = s.db.Update(func(tx *bolt.Tx) error {
			pk := primaryKey(rec.Region, rec.ID)
			index := tx.Bucket(bucketSendIndex)
			keys := tx.Bucket(bucketIndexKeys)

			if old := keys.Get(pk); old != nil {
				if err := index.Delete(old); err != nil {
					return err
				}
			}

			ik := sendIndexKey(rec.SendTime, rec.Region, rec.ID)
			if err := index.Put(ik, pk); err != nil {
				return err
			}
			if err := keys.Put(pk, ik); err != nil {
				return err
			}
			return tx.Bucket(bucketCampaigns).Put(pk, payload)
		})
		if err != nil {
			return fmt.Errorf("failed to upsert campaign %s: %w", rec.ID, err)
		}
	}
	return nil
}

func (s *BoltStore) GetCached(ctx context.Context, q Query) ([]models.CampaignRecord, error) {
	lower := []byte(formatSendTime(windowStart(s.now(), q.WindowDays)))
	records := []models.CampaignRecord{}

	err := s.db.View(func(tx *bolt.Tx) error {
		campaigns := tx.Bucket(bucketCampaigns)
		c := tx.Bucket(bucketSendIndex).Cursor()

		for k, pk := c.Last(); k != nil; k, pk = c.Prev() {
			if bytes.Compare(k, lower) < 0 {
				break
			}
			if len(records) >= s.maxRows {
				break
			}
			if q.Region != "" && regionOf(pk) != q.Region {
				continue
			}

			data := campaigns.Get(pk)
			if data == nil {
				continue
			}
			rec, err := decodeRecord(data)
			if err != nil {
				s.logger.Warn("skipping malformed cached campaign", "key", string(pk), "error", err)
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read campaigns: %w", err)
	}
	return records, nil
}

func (s *BoltStore) Clear(ctx context.Context, region string) (int64, error) {
	var deleted int64

	err := s.db.Update(func(tx *bolt.Tx) error {
		if region == "" {
			deleted = int64(tx.Bucket(bucketCampaigns).Stats().KeyN)
			for _, name := range [][]byte{bucketCampaigns, bucketSendIndex, bucketIndexKeys} {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
				if _, err := tx.CreateBucket(name); err != nil {
					return err
				}
			}
			return nil
		}

		campaigns := tx.Bucket(bucketCampaigns)
		index := tx.Bucket(bucketSendIndex)
		keys := tx.Bucket(bucketIndexKeys)
		prefix := []byte(region + "\x00")

		// collect first; deleting while iterating skips keys
		var pks [][]byte
		c := campaigns.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			pks = append(pks, append([]byte(nil), k...))
		}

		for _, pk := range pks {
			if ik := keys.Get(pk); ik != nil {
				if err := index.Delete(ik); err != nil {
					return err
				}
			}
			if err := keys.Delete(pk); err != nil {
				return err
			}
			if err := campaigns.Delete(pk); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clear campaigns: %w", err)
	}
	return deleted, nil
}

func (s *BoltStore) RowsByRegion(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCampaigns).ForEach(func(k, _ []byte) error {
			counts[regionOf(k)]++
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count campaigns: %w", err)
	}
	return counts, nil
}

func (s *BoltStore) Stats(ctx context.Context) (models.CacheStats, error) {
	counts, err := s.RowsByRegion(ctx)
	if err != nil {
		return models.CacheStats{}, err
	}
	return statsFromCounts(counts), nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
