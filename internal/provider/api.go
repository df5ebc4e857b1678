package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Machine statuses reported by GET /v1/machines/{id}.
const (
	StatusNew      = "new"
	StatusStarting = "starting"
	StatusRunning  = "running"
	StatusOff      = "off"
	StatusErrored  = "errored"
)

// Regions available for machine placement.
var Regions = []string{"us-east", "us-west", "eu-central"}

// Sizes maps size tiers to a short human description shown in the
// interactive picker.
var Sizes = []struct {
	Name string
	Desc string
}{
	{"small", "2 vCPU / 4 GB"},
	{"medium", "4 vCPU / 8 GB"},
	{"large", "8 vCPU / 16 GB"},
}

// DefaultImage is the base image used when the user does not pick one.
const DefaultImage = "ubuntu-24.04"

// Machine is the provider's view of one compute resource.
type Machine struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Region   string `json:"region"`
	Size     string `json:"size"`
	PublicIP string `json:"public_ip"`
	SSHUser  string `json:"ssh_user"`
	SSHPort  int    `json:"ssh_port"`
}

// Volume is an attached block storage resource.
type Volume struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region"`
	SizeGB int    `json:"size_gb"`
}

// Account identifies the token owner; fetched only as a credential
// probe.
type Account struct {
	Email  string `json:"email"`
	Status string `json:"status"`
}

// CreateMachineRequest is the body of POST /v1/machines.
type CreateMachineRequest struct {
	Name     string `json:"name"`
	Region   string `json:"region"`
	Size     string `json:"size"`
	Image    string `json:"image"`
	VolumeID string `json:"volume_id,omitempty"`
}

type machineEnvelope struct {
	Machine Machine `json:"machine"`
}

type volumeEnvelope struct {
	Volume Volume `json:"volume"`
}

type volumeListEnvelope struct {
	Volumes []Volume `json:"volumes"`
}

type accountEnvelope struct {
	Account Account `json:"account"`
}

type createVolumeRequest struct {
	Name   string `json:"name"`
	Region string `json:"region"`
	SizeGB int    `json:"size_gb"`
}

// Account fetches the token owner's account. A success means the token
// is valid.
func (c *Client) Account(ctx context.Context) (Account, error) {
	var env accountEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/account", nil, &env); err != nil {
		return Account{}, err
	}
	return env.Account, nil
}

// CreateMachine provisions a compute resource and returns the
// provider's record of it, including its reachable address.
func (c *Client) CreateMachine(ctx context.Context, req CreateMachineRequest) (Machine, error) {
	var env machineEnvelope
	if err := c.do(ctx, http.MethodPost, "/v1/machines", req, &env); err != nil {
		return Machine{}, err
	}
	if env.Machine.ID == "" {
		return Machine{}, fmt.Errorf("create machine response carried no machine ID")
	}
	return env.Machine, nil
}

// GetMachine fetches the current status and address of a machine.
func (c *Client) GetMachine(ctx context.Context, id string) (Machine, error) {
	var env machineEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/machines/"+id, nil, &env); err != nil {
		return Machine{}, err
	}
	return env.Machine, nil
}

// DeleteMachine destroys a machine. Deleting a machine that no longer
// exists is a success.
func (c *Client) DeleteMachine(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/v1/machines/"+id, nil, nil)
	return ignoreNotFound(err)
}

// CreateVolume provisions attached block storage.
func (c *Client) CreateVolume(ctx context.Context, name string, sizeGB int, region string) (Volume, error) {
	var env volumeEnvelope
	req := createVolumeRequest{Name: name, Region: region, SizeGB: sizeGB}
	if err := c.do(ctx, http.MethodPost, "/v1/volumes", req, &env); err != nil {
		return Volume{}, err
	}
	if env.Volume.ID == "" {
		return Volume{}, fmt.Errorf("create volume response carried no volume ID")
	}
	return env.Volume, nil
}

// ListVolumes returns every volume owned by the token's account.
func (c *Client) ListVolumes(ctx context.Context) ([]Volume, error) {
	var env volumeListEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/volumes", nil, &env); err != nil {
		return nil, err
	}
	return env.Volumes, nil
}

// DeleteVolume destroys a volume. Like DeleteMachine, a 404 is a
// success.
func (c *Client) DeleteVolume(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/v1/volumes/"+id, nil, nil)
	return ignoreNotFound(err)
}

func ignoreNotFound(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}
