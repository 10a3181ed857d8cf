package storage

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
)

type memoryObject struct {
	data        []byte
	contentType string
}

type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

var _ interfaces.StorageClient = &MemoryClient{}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		objects: make(map[string]memoryObject),
	}
}

func (m *MemoryClient) Put(ctx context.Context, object string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[object] = memoryObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
	}
	return nil
}

func (m *MemoryClient) Get(ctx context.Context, object string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, exists := m.objects[object]
	if !exists {
		return nil, goerr.New("object not found",
			goerr.T(errs.TagNotFound),
			goerr.V("object", object))
	}
	return append([]byte(nil), obj.data...), nil
}

// ContentType returns the stored content type, for assertions in tests.
func (m *MemoryClient) ContentType(object string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[object].contentType
}

func (m *MemoryClient) Close(ctx context.Context) {}
