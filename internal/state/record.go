// Package state persists the last-known-connection record: a small
// local file describing the most recent machine so later invocations
// (and outside tooling) can reconnect or destroy it without asking the
// provider first.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spinup-sh/spinup/internal/models"
	"github.com/spinup-sh/spinup/internal/utils"
)

// connectionFile is the record's filename inside the config dir.
const connectionFile = "connection.json"

// ConnectionRecord is the on-disk shape of the record. It is
// best-effort: the machine may be gone by the time it is read.
type ConnectionRecord struct {
	Name      string    `json:"name"`
	MachineID string    `json:"machine_id"`
	VolumeID  string    `json:"volume_id,omitempty"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	User      string    `json:"user"`
	Region    string    `json:"region"`
	Provider  string    `json:"provider"`
	SavedAt   time.Time `json:"saved_at"`
}

// Handle rebuilds a resource handle from the record, already in the
// Ready state since the record is only written for ready machines.
func (r ConnectionRecord) Handle() *models.ResourceHandle {
	h := models.NewHandle(models.ResourceSpec{Name: r.Name, Region: r.Region})
	h.ID = r.MachineID
	h.VolumeID = r.VolumeID
	h.Host = r.Host
	h.Port = r.Port
	h.User = r.User
	h.Transition(models.StateCreating)
	h.Transition(models.StateStarted)
	h.Transition(models.StateReady)
	return h
}

// Store reads and writes the record.
type Store interface {
	Save(rec ConnectionRecord) error
	Load() (ConnectionRecord, error)
	Clear() error
}

// FileStore keeps the record in the spinup config dir.
type FileStore struct{}

// Save overwrites the record, owner-only.
func (FileStore) Save(rec ConnectionRecord) error {
	dir, err := utils.EnsureConfigDir()
	if err != nil {
		return err
	}
	rec.SavedAt = time.Now().UTC()
	if rec.Provider == "" {
		rec.Provider = "nimbus"
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, connectionFile), data, 0o600)
}

// Load returns the most recently saved record.
func (FileStore) Load() (ConnectionRecord, error) {
	dir, err := utils.ConfigDir()
	if err != nil {
		return ConnectionRecord{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, connectionFile))
	if err != nil {
		if os.IsNotExist(err) {
			return ConnectionRecord{}, fmt.Errorf("no saved machine; run 'spinup launch' first")
		}
		return ConnectionRecord{}, err
	}
	var rec ConnectionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ConnectionRecord{}, fmt.Errorf("parse %s: %w", connectionFile, err)
	}
	return rec, nil
}

// Clear removes the record, typically after its machine is destroyed.
// Clearing an absent record is not an error.
func (FileStore) Clear() error {
	dir, err := utils.ConfigDir()
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, connectionFile)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// FromHandle builds a record for a ready handle.
func FromHandle(h *models.ResourceHandle) ConnectionRecord {
	return ConnectionRecord{
		Name:      h.Name,
		MachineID: h.ID,
		VolumeID:  h.VolumeID,
		Host:      h.Host,
		Port:      h.Port,
		User:      h.User,
		Region:    h.Region,
		Provider:  "nimbus",
	}
}
