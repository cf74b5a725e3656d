package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"devicemonitor/internal/models"
)

// RegistryStore persists the device registry as a JSON object keyed by id.
//
// Every mutation loads the file, changes it and writes the whole document
// back. There is no locking: concurrent writers race and the last one wins.
type RegistryStore struct {
	path string
}

// NewRegistryStore creates a store for the given file, creating its directory.
func NewRegistryStore(path string) (*RegistryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure registry directory: %w", err)
	}
	return &RegistryStore{path: path}, nil
}

// Path returns the registry file location.
func (s *RegistryStore) Path() string {
	return s.path
}

// Load reads the registry. A missing file is created empty; an empty or
// unparsable file is reported as ErrStoreCorrupt.
func (s *RegistryStore) Load() (models.Registry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			reg := models.Registry{}
			if err := s.Save(reg); err != nil {
				return nil, err
			}
			return reg, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var raw map[string]models.Device
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreCorrupt, s.path, err)
	}

	reg := make(models.Registry, len(raw))
	for key, dev := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: key %q is not an integer id", ErrStoreCorrupt, s.path, key)
		}
		if _, dup := reg[id]; dup {
			return nil, fmt.Errorf("%w: %s: id %d appears more than once", ErrStoreCorrupt, s.path, id)
		}
		reg[id] = dev
	}
	return reg, nil
}

// Save replaces the registry file with the given snapshot.
func (s *RegistryStore) Save(reg models.Registry) error {
	raw := make(map[string]models.Device, len(reg))
	for id, dev := range reg {
		raw[strconv.Itoa(id)] = dev
	}

	bytes, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	tmpPath := tmp.Name()
	if err := writeSynced(tmp, bytes); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp registry: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace registry file: %w", err)
	}
	return nil
}

// writeSynced writes data, flushes it to disk and closes f.
func writeSynced(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Get returns the device stored under id.
func (s *RegistryStore) Get(id int) (models.Device, bool, error) {
	reg, err := s.Load()
	if err != nil {
		return models.Device{}, false, err
	}
	dev, ok := reg[id]
	return dev, ok, nil
}

// List returns all devices ordered by id.
func (s *RegistryStore) List() ([]models.DeviceEntry, error) {
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	return reg.Entries(), nil
}

// Insert adds a device under a new id.
func (s *RegistryStore) Insert(id int, dev models.Device) error {
	reg, err := s.Load()
	if err != nil {
		return err
	}
	if _, ok := reg[id]; ok {
		return &DeviceError{ID: id, Err: ErrDuplicateID}
	}
	reg[id] = dev
	return s.Save(reg)
}

// Update overwrites the name and address of an existing device.
func (s *RegistryStore) Update(id int, dev models.Device) error {
	reg, err := s.Load()
	if err != nil {
		return err
	}
	if _, ok := reg[id]; !ok {
		return &DeviceError{ID: id, Err: ErrNotFound}
	}
	reg[id] = dev
	return s.Save(reg)
}

// Delete removes a device.
func (s *RegistryStore) Delete(id int) error {
	reg, err := s.Load()
	if err != nil {
		return err
	}
	if _, ok := reg[id]; !ok {
		return &DeviceError{ID: id, Err: ErrNotFound}
	}
	delete(reg, id)
	return s.Save(reg)
}
