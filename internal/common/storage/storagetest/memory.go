// Package storagetest provides an in-memory storage.ObjectStorage for service tests.
package storagetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"codejudge/internal/common/storage"
)

type object struct {
	data        []byte
	contentType string
}

// Memory keeps objects in a map keyed by bucket/key.
type Memory struct {
	mu      sync.Mutex
	objects map[string]object

	// PutErr, when set, fails every PutObject.
	PutErr error
}

var _ storage.ObjectStorage = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]object)}
}

// Seed stores data directly, as a client upload through a presigned URL would.
func (m *Memory) Seed(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = object{data: data}
}

// Get returns a stored object's bytes.
func (m *Memory) Get(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[bucket+"/"+key]
	return obj.data, ok
}

// Len reports how many objects are stored.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func (m *Memory) PutObject(_ context.Context, bucket, objectKey string, reader io.Reader, _ int64, contentType string) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+objectKey] = object{data: bytes.Clone(data), contentType: contentType}
	return nil
}

func (m *Memory) PresignPut(_ context.Context, bucket, objectKey string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s/%s?method=PUT&ttl=%d", bucket, objectKey, int(ttl.Seconds())), nil
}

func (m *Memory) PresignGet(_ context.Context, bucket, objectKey string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s/%s?method=GET&ttl=%d", bucket, objectKey, int(ttl.Seconds())), nil
}

func (m *Memory) StatObject(_ context.Context, bucket, objectKey string) (storage.ObjectStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[bucket+"/"+objectKey]
	if !ok {
		return storage.ObjectStat{}, storage.ErrObjectNotFound
	}
	return storage.ObjectStat{SizeBytes: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (m *Memory) RemoveObject(_ context.Context, bucket, objectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+objectKey)
	return nil
}

func (m *Memory) ListObjects(_ context.Context, bucket, prefix string) <-chan storage.ObjectInfo {
	m.mu.Lock()
	var keys []string
	for full := range m.objects {
		key, ok := strings.CutPrefix(full, bucket+"/")
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()
	sort.Strings(keys)

	out := make(chan storage.ObjectInfo, len(keys))
	for _, key := range keys {
		out <- storage.ObjectInfo{Key: key}
	}
	close(out)
	return out
}

func (m *Memory) RemoveObjects(ctx context.Context, bucket string, objectKeys []string) error {
	for _, key := range objectKeys {
		if err := m.RemoveObject(ctx, bucket, key); err != nil {
			return err
		}
	}
	return nil
}
