package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/urfave/cli/v2"

	"github.com/spinup-sh/spinup/internal/credential"
	"github.com/spinup-sh/spinup/internal/lifecycle"
	"github.com/spinup-sh/spinup/internal/models"
	"github.com/spinup-sh/spinup/internal/prompts"
	"github.com/spinup-sh/spinup/internal/provider"
	"github.com/spinup-sh/spinup/internal/state"
	"github.com/spinup-sh/spinup/internal/utils"
)

// Environment overrides that skip the corresponding interactive prompt.
const (
	envName   = "SPINUP_NAME"
	envRegion = "SPINUP_REGION"
	envSize   = "SPINUP_SIZE"
)

// reportRun prints a successful command's output. On failure the
// output is only carried inside the returned error, whose message
// already embeds the tail; printing it here too would show it twice.
func reportRun(out io.Writer, command string, res models.ExecutionResult) error {
	if res.Killed || res.ExitCode != 0 {
		return &models.RemoteExecError{Command: command, ExitCode: res.ExitCode, Killed: res.Killed, Output: res.Output}
	}
	fmt.Fprint(out, res.Output)
	return nil
}

// sessionContext cancels on SIGINT/SIGTERM so an interrupted launch
// still gets its best-effort teardown before the process exits.
func sessionContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newClient resolves the session credential and returns a provider
// client bound to it.
func newClient(ctx context.Context, c *cli.Context) (*provider.Client, error) {
	apiURL := c.String("api-url")
	probe := func(ctx context.Context, token string) error {
		_, err := provider.NewClient(apiURL, token).Account(ctx)
		return err
	}
	store := credential.NewStore(probe, true)
	cred, err := store.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return provider.NewClient(apiURL, cred.Token), nil
}

// resolveSpec fills the resource spec from flags, then env overrides,
// then interactive prompts.
func resolveSpec(c *cli.Context) (models.ResourceSpec, error) {
	var spec models.ResourceSpec

	spec.Name = firstOf(c.String("name"), os.Getenv(envName))
	if spec.Name == "" {
		def, err := utils.DefaultMachineName()
		if err != nil {
			return spec, err
		}
		name, err := prompts.MachineName(def)
		if err != nil {
			return spec, err
		}
		spec.Name = name
	} else if err := prompts.ValidateName(spec.Name); err != nil {
		return spec, err
	}

	spec.Region = firstOf(c.String("region"), os.Getenv(envRegion))
	if spec.Region == "" {
		region, err := prompts.Region()
		if err != nil {
			return spec, err
		}
		spec.Region = region
	}

	spec.Size = firstOf(c.String("size"), os.Getenv(envSize))
	if spec.Size == "" {
		size, err := prompts.Size()
		if err != nil {
			return spec, err
		}
		spec.Size = size
	}

	spec.Image = c.String("image")
	spec.VolumeGB = c.Int("volume-gb")
	return spec, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseEnvFlags turns --env entries into the injection map. A bare KEY
// copies the value from the local environment, the way the agent setup
// scripts seed API keys.
func parseEnvFlags(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, found := strings.Cut(entry, "=")
		if key == "" {
			return nil, fmt.Errorf("invalid --env entry %q", entry)
		}
		if !found {
			local, ok := os.LookupEnv(key)
			if !ok {
				return nil, fmt.Errorf("--env %s: variable not set locally", key)
			}
			value = local
		}
		vars[key] = value
	}
	return vars, nil
}

func launchCommand(c *cli.Context) error {
	ctx, cancel := sessionContext()
	defer cancel()

	client, err := newClient(ctx, c)
	if err != nil {
		return err
	}
	spec, err := resolveSpec(c)
	if err != nil {
		return err
	}
	env, err := parseEnvFlags(c.StringSlice("env"))
	if err != nil {
		return err
	}

	mgr := lifecycle.New(client, state.FileStore{}, os.Stdout)
	_, err = mgr.Launch(ctx, spec, lifecycle.LaunchOptions{
		Env:           env,
		SetupCommands: c.StringSlice("setup"),
		SetupTimeout:  time.Duration(c.Int("setup-timeout")) * time.Second,
		Attach:        !c.Bool("no-attach"),
	})
	return err
}

func runCommand(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("usage: spinup run COMMAND [ARG...]")
	}
	ctx, cancel := sessionContext()
	defer cancel()

	client, err := newClient(ctx, c)
	if err != nil {
		return err
	}
	rec, err := state.FileStore{}.Load()
	if err != nil {
		return err
	}

	mgr := lifecycle.New(client, state.FileStore{}, os.Stdout)
	command := shellquote.Join(c.Args().Slice()...)
	res, err := mgr.Run(ctx, rec.Handle(), command, time.Duration(c.Int("timeout"))*time.Second)
	if err != nil {
		return err
	}
	return reportRun(os.Stdout, command, res)
}

func connectCommand(c *cli.Context) error {
	ctx, cancel := sessionContext()
	defer cancel()

	client, err := newClient(ctx, c)
	if err != nil {
		return err
	}
	rec, err := state.FileStore{}.Load()
	if err != nil {
		return err
	}

	mgr := lifecycle.New(client, state.FileStore{}, os.Stdout)
	code, err := mgr.Attach(ctx, rec.Handle(), "")
	if err != nil {
		return err
	}
	if code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

func destroyCommand(c *cli.Context) error {
	ctx, cancel := sessionContext()
	defer cancel()

	client, err := newClient(ctx, c)
	if err != nil {
		return err
	}

	var handle *models.ResourceHandle
	if id := c.String("id"); id != "" {
		handle = models.NewHandle(models.ResourceSpec{Name: id})
		handle.Transition(models.StateCreating)
		handle.ID = id
		handle.VolumeID = c.String("volume-id")
	} else {
		rec, err := state.FileStore{}.Load()
		if err != nil {
			return err
		}
		handle = rec.Handle()
	}

	if !c.Bool("force") {
		yes, err := prompts.ConfirmDestroy(handle.Name, handle.ID)
		if err != nil {
			return err
		}
		if !yes {
			fmt.Println("Aborted.")
			return nil
		}
	}

	mgr := lifecycle.New(client, state.FileStore{}, os.Stdout)
	if err := mgr.Destroy(ctx, handle); err != nil {
		return err
	}
	fmt.Printf("🗑️  Machine %s destroyed.\n", handle.ID)
	return nil
}

func statusCommand(c *cli.Context) error {
	ctx, cancel := sessionContext()
	defer cancel()

	client, err := newClient(ctx, c)
	if err != nil {
		return err
	}
	rec, err := state.FileStore{}.Load()
	if err != nil {
		return err
	}

	machine, err := client.GetMachine(ctx, rec.MachineID)
	if err != nil {
		return err
	}
	fmt.Printf("Machine:  %s (%s)\n", machine.Name, machine.ID)
	fmt.Printf("Status:   %s\n", machine.Status)
	fmt.Printf("Region:   %s\n", machine.Region)
	fmt.Printf("Size:     %s\n", machine.Size)
	fmt.Printf("Address:  %s@%s:%d\n", machine.SSHUser, machine.PublicIP, machine.SSHPort)
	fmt.Printf("Saved:    %s\n", rec.SavedAt.Format(time.RFC3339))
	return nil
}
