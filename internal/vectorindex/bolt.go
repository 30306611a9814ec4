package vectorindex

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"lms-assistant-backend/models"
	"lms-assistant-backend/utils"
)

var (
	bucketVectors = []byte("vectors")
	bucketMeta    = []byte("meta")
	keyMeta       = []byte("index_meta")
)

// boltStore is the durable side of the index: one bucket of rows keyed by
// big-endian handle plus a metadata record. Fragment text is gzip-compressed
// on disk; vectors are stored raw.
type boltStore struct {
	db *bbolt.DB
}

type indexMeta struct {
	Dimension  int    `json:"dimension"`
	NextHandle uint64 `json:"next_handle"`
}

type storedRow struct {
	Vector      []float32         `json:"v"`
	Content     []byte            `json:"c"`
	Compression string            `json:"z,omitempty"`
	SourceFile  string            `json:"source_file"`
	CourseID    int               `json:"course_id"`
	ChapterName string            `json:"chapter_name"`
	PageNumber  int               `json:"page_number"`
	ChunkIndex  int               `json:"chunk_index"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func openBoltStore(path string) (*boltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketVectors, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}

// LoadAll reads the metadata record and every row, ordered by handle.
func (s *boltStore) LoadAll() (indexMeta, []row, error) {
	var meta indexMeta
	var rows []row

	err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(bucketMeta).Get(keyMeta); data != nil {
			if err := json.Unmarshal(data, &meta); err != nil {
				return fmt.Errorf("corrupt index metadata: %w", err)
			}
		}

		// Bolt iterates keys in byte order; big-endian handles keep that
		// identical to insertion order.
		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var stored storedRow
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("corrupt row %x: %w", k, err)
			}
			content := stored.Content
			if stored.Compression != "" {
				plain, err := utils.DecompressData(content, utils.CompressionAlgorithm(stored.Compression))
				if err != nil {
					return fmt.Errorf("failed to decompress row %x: %w", k, err)
				}
				content = plain
			}
			rows = append(rows, row{
				handle: binary.BigEndian.Uint64(k),
				vector: stored.Vector,
				fragment: models.Fragment{
					Content:     string(content),
					SourceFile:  stored.SourceFile,
					CourseID:    stored.CourseID,
					ChapterName: stored.ChapterName,
					PageNumber:  stored.PageNumber,
					ChunkIndex:  stored.ChunkIndex,
					Metadata:    stored.Metadata,
				},
			})
			return nil
		})
	})
	if err != nil {
		return indexMeta{}, nil, err
	}
	return meta, rows, nil
}

// CommitBatch writes the rows and the updated metadata in one transaction.
func (s *boltStore) CommitBatch(meta indexMeta, batch []row) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		vectors := tx.Bucket(bucketVectors)
		for _, r := range batch {
			compressed, err := utils.CompressData([]byte(r.fragment.Content), utils.CompressionGzip)
			if err != nil {
				return err
			}
			stored := storedRow{
				Vector:      r.vector,
				Content:     compressed,
				Compression: string(utils.CompressionGzip),
				SourceFile:  r.fragment.SourceFile,
				CourseID:    r.fragment.CourseID,
				ChapterName: r.fragment.ChapterName,
				PageNumber:  r.fragment.PageNumber,
				ChunkIndex:  r.fragment.ChunkIndex,
				Metadata:    r.fragment.Metadata,
			}
			data, err := json.Marshal(stored)
			if err != nil {
				return err
			}
			if err := vectors.Put(handleKey(r.handle), data); err != nil {
				return err
			}
		}

		metaData, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyMeta, metaData)
	})
}

// DeleteHandles removes rows; the metadata record is untouched so retired
// handles are never handed out again.
func (s *boltStore) DeleteHandles(handles []uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		vectors := tx.Bucket(bucketVectors)
		for _, h := range handles {
			if err := vectors.Delete(handleKey(h)); err != nil {
				return err
			}
		}
		return nil
	})
}

func handleKey(h uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, h)
	return key
}
