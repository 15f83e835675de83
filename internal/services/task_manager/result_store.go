package task_manager

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

// ResultStore хранит результаты задач по TaskID.
type ResultStore interface {
	Put(taskID string, data []byte) (digest string, err error)
	Get(taskID string) ([]byte, error)
}

// Digest - адрес содержимого в хранилище.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MemoryResultStore держит результаты только в памяти процесса.
type MemoryResultStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	tasks   map[string]string
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{objects: make(map[string][]byte), tasks: make(map[string]string)}
}

func (s *MemoryResultStore) Put(taskID string, data []byte) (string, error) {
	digest := Digest(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[digest]; !ok {
		s.objects[digest] = append([]byte(nil), data...)
	}
	s.tasks[taskID] = digest
	return digest, nil
}

func (s *MemoryResultStore) Get(taskID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	digest, ok := s.tasks[taskID]
	if !ok {
		return nil, apperrors.NewNotFound("result", taskID)
	}
	return append([]byte(nil), s.objects[digest]...), nil
}

// FileResultStore - хранилище с адресацией по содержимому:
// objects/<sha256> хранит данные, tasks/<taskID> - ссылку на объект.
// Одинаковые результаты разных задач хранятся один раз.
type FileResultStore struct {
	root string
}

func NewFileResultStore(root string) (*FileResultStore, error) {
	for _, dir := range []string{"objects", "tasks"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("не удалось создать каталог результатов: %w", err)
		}
	}
	return &FileResultStore{root: root}, nil
}

func (s *FileResultStore) Put(taskID string, data []byte) (string, error) {
	if err := validKey(taskID); err != nil {
		return "", err
	}
	digest := Digest(data)

	object := filepath.Join(s.root, "objects", digest)
	if _, err := os.Stat(object); os.IsNotExist(err) {
		if err := writeAtomic(object, data); err != nil {
			return "", err
		}
	}
	if err := writeAtomic(filepath.Join(s.root, "tasks", taskID), []byte(digest)); err != nil {
		return "", err
	}
	return digest, nil
}

func (s *FileResultStore) Get(taskID string) ([]byte, error) {
	if err := validKey(taskID); err != nil {
		return nil, err
	}
	ref, err := os.ReadFile(filepath.Join(s.root, "tasks", taskID))
	if os.IsNotExist(err) {
		return nil, apperrors.NewNotFound("result", taskID)
	}
	if err != nil {
		return nil, err
	}

	digest := strings.TrimSpace(string(ref))
	if err := validKey(digest); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, "objects", digest))
	if err != nil {
		return nil, fmt.Errorf("объект результата %s: %w", digest, err)
	}
	if Digest(data) != digest {
		return nil, fmt.Errorf("объект результата %s поврежден", digest)
	}
	return data, nil
}

// writeAtomic пишет во временный файл и переименовывает его.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("недопустимый ключ результата '%s'", key)
	}
	return nil
}
