// Package provision creates the compute resource and its optional
// attached volume, rolling the volume back if machine creation fails so
// nothing billable is left dangling.
package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spinup-sh/spinup/internal/models"
	"github.com/spinup-sh/spinup/internal/provider"
)

// API is the slice of the provider client the provisioner needs.
type API interface {
	CreateVolume(ctx context.Context, name string, sizeGB int, region string) (provider.Volume, error)
	DeleteVolume(ctx context.Context, id string) error
	CreateMachine(ctx context.Context, req provider.CreateMachineRequest) (provider.Machine, error)
}

// Provisioner turns a ResourceSpec into a live handle.
type Provisioner struct {
	api API
}

// New returns a provisioner backed by api.
func New(api API) *Provisioner {
	return &Provisioner{api: api}
}

// Create provisions the volume (if requested) and then the machine.
// On machine-creation failure after the volume succeeded, the volume
// is deleted before the error is returned; a rollback failure is
// reported alongside but never masks the original error.
func (p *Provisioner) Create(ctx context.Context, spec models.ResourceSpec) (*models.ResourceHandle, error) {
	handle := models.NewHandle(spec)
	if err := handle.Transition(models.StateCreating); err != nil {
		return nil, err
	}

	var volumeID string
	if spec.VolumeGB > 0 {
		vol, err := p.api.CreateVolume(ctx, spec.Name+"-data", spec.VolumeGB, spec.Region)
		if err != nil {
			handle.Transition(models.StateFailed)
			return nil, &models.ProvisionError{
				Step:   "create volume",
				Region: spec.Region,
				Size:   spec.Size,
				Hint:   hintFor(err),
				Cause:  err,
			}
		}
		volumeID = vol.ID
		handle.VolumeID = volumeID
	}

	image := spec.Image
	if image == "" {
		image = provider.DefaultImage
	}
	machine, err := p.api.CreateMachine(ctx, provider.CreateMachineRequest{
		Name:     spec.Name,
		Region:   spec.Region,
		Size:     spec.Size,
		Image:    image,
		VolumeID: volumeID,
	})
	if err != nil {
		handle.Transition(models.StateFailed)
		provErr := &models.ProvisionError{
			Step:   "create machine",
			Region: spec.Region,
			Size:   spec.Size,
			Hint:   hintFor(err),
			Cause:  err,
		}
		if volumeID != "" {
			// Attached storage bills per GB-month; never leave it behind.
			// The request context may be the reason the create failed
			// (Ctrl-C), so the rollback delete gets a fresh one.
			delCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if delErr := p.api.DeleteVolume(delCtx, volumeID); delErr != nil {
				return nil, fmt.Errorf("%w (additionally, rollback of volume %s failed: %v)", provErr, volumeID, delErr)
			}
			handle.VolumeID = ""
		}
		return nil, provErr
	}

	handle.ID = machine.ID
	handle.Host = machine.PublicIP
	handle.Port = machine.SSHPort
	handle.User = machine.SSHUser
	if handle.Port == 0 {
		handle.Port = 22
	}
	if handle.User == "" {
		handle.User = "root"
	}
	return handle, nil
}

// hintFor maps a fatal provider status to a concrete remediation the
// user can act on.
func hintFor(err error) string {
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) {
		return ""
	}
	switch apiErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "your token may have expired; delete the saved credentials file or set SPINUP_TOKEN and retry"
	case http.StatusConflict:
		return "a resource with this name already exists; pick another name or destroy the old one"
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return "the requested region/size combination may be unavailable; try another region or a smaller size"
	default:
		return "see https://console.nimbus.dev for your account's current resources"
	}
}
