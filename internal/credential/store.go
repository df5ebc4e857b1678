// Package credential resolves the Nimbus API token for one session.
// Resolution walks a priority chain (env var, saved file, provider CLI,
// interactive login) and validates each candidate with a cheap probe
// call before trusting it. Tokens are never printed or logged.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/spinup-sh/spinup/internal/models"
	"github.com/spinup-sh/spinup/internal/utils"
)

// EnvToken overrides the whole resolution chain when it holds a valid
// token.
const EnvToken = "SPINUP_TOKEN"

// credentialsFile is the JSON file the token is persisted to, relative
// to the config dir.
const credentialsFile = "credentials.json"

// consoleTokenURL is where a user mints a token by hand.
const consoleTokenURL = "https://console.nimbus.dev/tokens"

// providerCLI is the provider's own command-line tool; an existing
// logged-in session can lend us its token.
const providerCLI = "nimbus"

// Credential is a validated API token and where it came from.
type Credential struct {
	Token  string
	Source string
}

type fileFormat struct {
	Token string `json:"token"`
}

// ProbeFunc checks a candidate token against the provider. A nil error
// means the token is valid.
type ProbeFunc func(ctx context.Context, token string) error

// Store resolves and persists the session credential.
type Store struct {
	probe       ProbeFunc
	interactive bool
	// test seams
	lookPath   func(string) (string, error)
	runCLI     func(ctx context.Context, name string, args ...string) ([]byte, error)
	askToken   func(message string) (string, error)
	askConfirm func(message string) (bool, error)
}

// NewStore returns a store that validates candidates with probe.
// interactive enables the browser/paste steps; batch callers pass
// false.
func NewStore(probe ProbeFunc, interactive bool) *Store {
	return &Store{
		probe:       probe,
		interactive: interactive,
		lookPath:    exec.LookPath,
		runCLI: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		askToken: func(message string) (string, error) {
			var token string
			err := survey.AskOne(&survey.Password{Message: message}, &token)
			return token, err
		},
		askConfirm: func(message string) (bool, error) {
			var yes bool
			err := survey.AskOne(&survey.Confirm{Message: message, Default: true}, &yes)
			return yes, err
		},
	}
}

// Normalize cleans up a raw token: surrounding whitespace and quotes
// are stripped, as is a pasted "Bearer " prefix.
func Normalize(raw string) string {
	token := strings.TrimSpace(raw)
	token = strings.Trim(token, `"'`)
	for _, prefix := range []string{"Bearer ", "bearer "} {
		token = strings.TrimPrefix(token, prefix)
	}
	return strings.TrimSpace(token)
}

// Resolve walks the chain and returns the first candidate the provider
// accepts. Every step that produced a candidate but failed validation
// is recorded; if the chain is exhausted the caller gets a
// NoCredentialError naming what was tried.
func (s *Store) Resolve(ctx context.Context) (Credential, error) {
	var tried []string

	// 1. Environment override. When valid it skips the saved file and
	// every interactive step; nothing is read or written on disk.
	if raw := os.Getenv(EnvToken); raw != "" {
		tried = append(tried, "environment")
		token := Normalize(raw)
		if err := s.probe(ctx, token); err == nil {
			return Credential{Token: token, Source: "environment"}, nil
		}
	}

	// 2. Previously saved token. Saved tokens can expire, so they are
	// re-validated on every load.
	if raw, err := s.load(); err == nil && raw != "" {
		tried = append(tried, "config file")
		token := Normalize(raw)
		if err := s.probe(ctx, token); err == nil {
			return Credential{Token: token, Source: "config file"}, nil
		}
	}

	// 3. An existing provider-CLI session.
	if token, ok := s.fromProviderCLI(ctx); ok {
		tried = append(tried, "nimbus CLI")
		if err := s.probe(ctx, token); err == nil {
			if err := s.Save(token); err != nil {
				fmt.Printf("⚠️  Could not save token: %v\n", err)
			}
			return Credential{Token: token, Source: "nimbus CLI"}, nil
		}
	}

	// 4. Interactive login: open the console and accept a paste. This
	// is the only step allowed to block on user input.
	if s.interactive {
		tried = append(tried, "interactive login")
		if cred, err := s.interactiveLogin(ctx); err == nil {
			return cred, nil
		} else if _, declined := err.(*declinedError); !declined {
			return Credential{}, err
		}
	}

	return Credential{}, &models.NoCredentialError{Tried: tried}
}

type declinedError struct{}

func (*declinedError) Error() string { return "login declined" }

// fromProviderCLI asks an installed nimbus CLI for its session token.
func (s *Store) fromProviderCLI(ctx context.Context) (string, bool) {
	if _, err := s.lookPath(providerCLI); err != nil {
		return "", false
	}
	out, err := s.runCLI(ctx, providerCLI, "auth", "token")
	if err != nil {
		return "", false
	}
	token := Normalize(string(out))
	return token, token != ""
}

// interactiveLogin opens the provider console in a browser and waits
// for the user to paste a token. Declining is not an error; the chain
// just ends.
func (s *Store) interactiveLogin(ctx context.Context) (Credential, error) {
	fmt.Println("🔑 No Nimbus API token found.")
	open, err := s.askConfirm(fmt.Sprintf("Open %s in your browser to create one?", consoleTokenURL))
	if err != nil {
		return Credential{}, err
	}
	if open {
		openBrowser(consoleTokenURL)
	}

	for attempt := 0; attempt < 3; attempt++ {
		raw, err := s.askToken("Paste your Nimbus API token:")
		if err != nil {
			return Credential{}, err
		}
		token := Normalize(raw)
		if token == "" {
			return Credential{}, &declinedError{}
		}
		if err := s.probe(ctx, token); err != nil {
			fmt.Printf("❌ That token was rejected: %v\n", err)
			continue
		}
		if err := s.Save(token); err != nil {
			fmt.Printf("⚠️  Could not save token: %v\n", err)
		}
		return Credential{Token: token, Source: "interactive login"}, nil
	}
	return Credential{}, &models.AuthError{Source: "interactive login", Cause: fmt.Errorf("token rejected three times")}
}

// load reads the persisted token, if any.
func (s *Store) load() (string, error) {
	dir, err := utils.ConfigDir()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, credentialsFile))
	if err != nil {
		return "", err
	}
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("parse %s: %w", credentialsFile, err)
	}
	return f.Token, nil
}

// Save persists token to the credentials file with owner-only
// permissions.
func (s *Store) Save(token string) error {
	dir, err := utils.EnsureConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(fileFormat{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, credentialsFile), data, 0o600)
}

// openBrowser launches the platform's URL opener; failure is fine, the
// user can open the URL by hand.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		fmt.Printf("Please open %s yourself.\n", url)
	}
}
