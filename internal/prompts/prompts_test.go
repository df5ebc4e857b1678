package prompts

import "testing"

func TestValidateName(t *testing.T) {
	valid := []string{"box", "my-box-2", "a", "spinup-x7f9k2q"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}
	invalid := []string{"", "-box", "Box", "my box", "café", "x" + string(make([]byte, 70))}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}
