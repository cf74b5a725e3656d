package models

import "sort"

// Device is a registered host. The id is the registry key and is not part of
// the persisted object.
type Device struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// DeviceEntry pairs a device with its registry id.
type DeviceEntry struct {
	ID int `json:"id"`
	Device
}

// Registry maps device ids to devices.
type Registry map[int]Device

// IDs returns the registry keys in ascending order. This is the iteration
// order used for listing and probing.
func (r Registry) IDs() []int {
	ids := make([]int, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Entries returns the devices ordered by id.
func (r Registry) Entries() []DeviceEntry {
	ids := r.IDs()
	out := make([]DeviceEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, DeviceEntry{ID: id, Device: r[id]})
	}
	return out
}
