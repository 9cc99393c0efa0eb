package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/GriffinCanCode/keepalive/internal/shared/errs"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
)

// String length limits
const (
	MaxPackageLength   = 255
	MaxComponentLength = 512
)

// Regular expressions for validation
var (
	// PackagePattern matches dotted package names ("com.example.app")
	PackagePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*(\.[a-zA-Z0-9_]+)*$`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil // Optional field, empty is OK
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidatePID rejects the zero, negative and sentinel pids
func ValidatePID(pid int) error {
	if pid <= 0 {
		return errs.New(errs.CategoryInvariant, "validate", "invalid pid").With("pid", pid)
	}
	return nil
}

// ValidatePackage validates a package name
func ValidatePackage(pkg string) error {
	if err := ValidateString(pkg, "package", 1, MaxPackageLength, true); err != nil {
		return errs.Wrap(err, errs.CategoryInvariant, "validate", "invalid package name")
	}
	if !PackagePattern.MatchString(pkg) {
		return errs.New(errs.CategoryInvariant, "validate", "invalid package name").With("package", pkg)
	}
	return nil
}

// ValidateIdentity validates both parts of an identity
func ValidateIdentity(id types.Identity) error {
	if id.UserID < 0 {
		return errs.New(errs.CategoryInvariant, "validate", "invalid user id").With("user_id", id.UserID)
	}
	return ValidatePackage(id.Package)
}

// ValidateProcessInfo validates a process creation report
func ValidateProcessInfo(info types.ProcessInfo) error {
	if err := ValidatePID(info.PID); err != nil {
		return err
	}
	return ValidateIdentity(info.Identity())
}

// ValidateComponent validates a component identity
func ValidateComponent(component string) error {
	return ValidateString(component, "component", 1, MaxComponentLength, true)
}
