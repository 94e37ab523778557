//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os/exec"
)

// security(1) exits 44 when no matching item exists.
const errSecItemNotFound = 44

func keychainGet(service, account string) ([]byte, error) {
	out, err := exec.Command("security", "find-generic-password", "-s", service, "-a", account, "-w").Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == errSecItemNotFound {
		return nil, fmt.Errorf("no keychain item %s/%s", service, account)
	}
	return out, err
}

// keychainSet creates or updates (-U) a generic password item.
func keychainSet(service, account, value string) error {
	out, err := exec.Command("security", "add-generic-password", "-U", "-s", service, "-a", account, "-w", value).CombinedOutput()
	if err != nil {
		return fmt.Errorf("writing keychain item %s/%s: %w (%s)", service, account, err, out)
	}
	return nil
}
