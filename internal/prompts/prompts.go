// Package prompts holds the interactive questions asked when a flag or
// environment override is absent.
package prompts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/spinup-sh/spinup/internal/provider"
)

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// ValidateName checks a machine name against the provider's rules.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("machine name %q must be lowercase alphanumeric with dashes, max 63 chars", name)
	}
	return nil
}

// MachineName asks for a name, offering a generated default.
func MachineName(defaultName string) (string, error) {
	var name string
	err := survey.AskOne(&survey.Input{
		Message: "Machine name:",
		Default: defaultName,
	}, &name)
	if err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// Region asks the user to pick a placement region.
func Region() (string, error) {
	var region string
	err := survey.AskOne(&survey.Select{
		Message: "Region:",
		Options: provider.Regions,
		Default: provider.Regions[0],
	}, &region)
	return region, err
}

// Size asks the user to pick a size tier.
func Size() (string, error) {
	options := make([]string, len(provider.Sizes))
	for i, s := range provider.Sizes {
		options[i] = fmt.Sprintf("%s (%s)", s.Name, s.Desc)
	}
	var picked string
	if err := survey.AskOne(&survey.Select{
		Message: "Size:",
		Options: options,
	}, &picked); err != nil {
		return "", err
	}
	return strings.SplitN(picked, " ", 2)[0], nil
}

// ConfirmDestroy double-checks before deleting a machine.
func ConfirmDestroy(name, id string) (bool, error) {
	var yes bool
	err := survey.AskOne(&survey.Confirm{
		Message: fmt.Sprintf("Destroy machine %q (%s)? This cannot be undone.", name, id),
		Default: false,
	}, &yes)
	return yes, err
}
