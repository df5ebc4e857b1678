package provision

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spinup-sh/spinup/internal/models"
	"github.com/spinup-sh/spinup/internal/provider"
)

// fakeAPI keeps an inventory of created resources so tests can check
// what rollback left behind.
type fakeAPI struct {
	volumes     map[string]provider.Volume
	machineErr  error
	volumeErr   error
	deleteCalls []string
	nextID      int
	afterVolume func()
	honorCtx    bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{volumes: map[string]provider.Volume{}}
}

func (f *fakeAPI) CreateVolume(ctx context.Context, name string, sizeGB int, region string) (provider.Volume, error) {
	if f.volumeErr != nil {
		return provider.Volume{}, f.volumeErr
	}
	f.nextID++
	v := provider.Volume{ID: fmt.Sprintf("vol-%d", f.nextID), Name: name, Region: region, SizeGB: sizeGB}
	f.volumes[v.ID] = v
	if f.afterVolume != nil {
		f.afterVolume()
	}
	return v, nil
}

func (f *fakeAPI) DeleteVolume(ctx context.Context, id string) error {
	if f.honorCtx {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	f.deleteCalls = append(f.deleteCalls, id)
	delete(f.volumes, id)
	return nil
}

func (f *fakeAPI) CreateMachine(ctx context.Context, req provider.CreateMachineRequest) (provider.Machine, error) {
	if f.honorCtx {
		if err := ctx.Err(); err != nil {
			return provider.Machine{}, err
		}
	}
	if f.machineErr != nil {
		return provider.Machine{}, f.machineErr
	}
	return provider.Machine{
		ID:       "m-1",
		Name:     req.Name,
		Status:   provider.StatusNew,
		PublicIP: "203.0.113.10",
		SSHUser:  "root",
		SSHPort:  22,
	}, nil
}

func TestCreateWithVolume(t *testing.T) {
	api := newFakeAPI()
	p := New(api)

	handle, err := p.Create(context.Background(), models.ResourceSpec{
		Name: "box", Region: "us-east", Size: "small", VolumeGB: 50,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if handle.ID != "m-1" || handle.VolumeID == "" {
		t.Errorf("handle incomplete: %+v", handle)
	}
	if handle.Host != "203.0.113.10" || handle.Port != 22 || handle.User != "root" {
		t.Errorf("address not extracted: %+v", handle)
	}
	if handle.State() != models.StateCreating {
		t.Errorf("state = %s, want creating", handle.State())
	}
}

func TestMachineFailureRollsBackVolume(t *testing.T) {
	api := newFakeAPI()
	api.machineErr = &provider.APIError{Method: "POST", Path: "/v1/machines", Status: 422, Body: "no capacity"}
	p := New(api)

	_, err := p.Create(context.Background(), models.ResourceSpec{
		Name: "box", Region: "us-east", Size: "small", VolumeGB: 50,
	})
	var provErr *models.ProvisionError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProvisionError, got %v", err)
	}
	if provErr.Step != "create machine" {
		t.Errorf("step = %q", provErr.Step)
	}
	if provErr.Hint == "" {
		t.Error("expected a remediation hint")
	}
	// The inventory check: no volumes left behind.
	if len(api.volumes) != 0 {
		t.Errorf("rollback left %d volumes", len(api.volumes))
	}
	if len(api.deleteCalls) != 1 {
		t.Errorf("expected one delete call, got %v", api.deleteCalls)
	}
}

func TestCancelledCreateStillRollsBackVolume(t *testing.T) {
	// Ctrl-C between the two creates: the volume exists, the machine
	// create dies with context.Canceled, and the rollback delete must
	// not be issued on the cancelled context.
	api := newFakeAPI()
	api.honorCtx = true
	ctx, cancel := context.WithCancel(context.Background())
	api.afterVolume = cancel
	defer cancel()
	p := New(api)

	_, err := p.Create(ctx, models.ResourceSpec{
		Name: "box", Region: "us-east", Size: "small", VolumeGB: 50,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(api.volumes) != 0 {
		t.Errorf("rollback left %d volume(s) behind: %v", len(api.volumes), api.volumes)
	}
	if len(api.deleteCalls) != 1 {
		t.Errorf("expected one delete call, got %v", api.deleteCalls)
	}
}

func TestVolumeFailureCreatesNothing(t *testing.T) {
	api := newFakeAPI()
	api.volumeErr = &provider.APIError{Method: "POST", Path: "/v1/volumes", Status: 400, Body: "bad size"}
	p := New(api)

	_, err := p.Create(context.Background(), models.ResourceSpec{
		Name: "box", Region: "us-east", Size: "small", VolumeGB: 50,
	})
	var provErr *models.ProvisionError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProvisionError, got %v", err)
	}
	if provErr.Step != "create volume" {
		t.Errorf("step = %q", provErr.Step)
	}
	if len(api.deleteCalls) != 0 {
		t.Errorf("nothing was created, nothing should be deleted: %v", api.deleteCalls)
	}
}

func TestCreateWithoutVolumeSkipsVolumeAPI(t *testing.T) {
	api := newFakeAPI()
	p := New(api)

	handle, err := p.Create(context.Background(), models.ResourceSpec{
		Name: "box", Region: "us-east", Size: "small",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if handle.VolumeID != "" {
		t.Errorf("unexpected volume: %q", handle.VolumeID)
	}
	if len(api.volumes) != 0 {
		t.Errorf("no volume should exist, got %d", len(api.volumes))
	}
}
