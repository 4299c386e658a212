package errors

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

const (
	maxNameLength = 256
	maxPathLength = 500
)

// checkText applies the rules shared by names and paths: non-empty,
// bounded length, printable.
func checkText(s string, limit int, code Code, what string) error {
	switch {
	case s == "":
		return New(code, "%s is empty", what)
	case len(s) > limit:
		return New(code, "%s exceeds %d bytes", what, limit)
	case strings.IndexFunc(s, unicode.IsControl) >= 0:
		return New(code, "%s contains control characters: %q", what, s)
	}
	return nil
}

// ValidatePackageName rejects a package name from a lockfile that could
// leave the output directory once it is used as a path component: no "..",
// "//" or backslash. Ecosystem-specific syntax is checked by the
// Validate*PackageName functions.
func ValidatePackageName(name string) error {
	if err := checkText(name, maxNameLength, ErrCodeInvalidPackage, "package name"); err != nil {
		return err
	}
	for _, bad := range []string{"..", "//", `\`} {
		if strings.Contains(name, bad) {
			return New(ErrCodeInvalidPackage, "package name %q contains %q", name, bad)
		}
	}
	return nil
}

// ValidatePath accepts a slash-separated path relative to the project,
// such as a package directory or a generated project file. It must not be
// absolute, contain a ".." segment or use backslashes.
func ValidatePath(path string) error {
	if err := checkText(path, maxPathLength, ErrCodeInvalidPath, "path"); err != nil {
		return err
	}
	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path %q is absolute", path)
	}
	if strings.Contains(path, `\`) {
		return New(ErrCodeInvalidPath, "path %q contains a backslash", path)
	}
	if slices.Contains(strings.Split(path, "/"), "..") {
		return New(ErrCodeInvalidPath, "path %q escapes the project", path)
	}
	return nil
}

// ValidateURL checks that rawURL is an absolute http(s) URL with a host.
// Artifact URLs declared in lockfiles must pass before anything is fetched.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Wrap(ErrCodeInvalidInput, err, "invalid URL %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme: %q", rawURL)
	}
	if u.Host == "" {
		return New(ErrCodeInvalidInput, "URL has no host: %q", rawURL)
	}
	return nil
}

var (
	// PEP 508 names.
	pythonNameRe = regexp.MustCompile(`^([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9._-]*[A-Za-z0-9])$`)
	// npm names, including legacy mixed-case names still present in old lockfiles.
	npmNameRe = regexp.MustCompile(`^(@[A-Za-z0-9-~][A-Za-z0-9-._~]*/)?[A-Za-z0-9-~][A-Za-z0-9-._~]*$`)
	// Cargo package names.
	crateNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)
)

// ValidatePythonPackageName validates a Python distribution name.
func ValidatePythonPackageName(name string) error {
	return validateWith(name, pythonNameRe, "Python package")
}

// ValidateNpmPackageName validates an npm package name, scoped or not.
func ValidateNpmPackageName(name string) error {
	return validateWith(name, npmNameRe, "npm package")
}

// ValidateCratesPackageName validates a Cargo package name.
func ValidateCratesPackageName(name string) error {
	return validateWith(name, crateNameRe, "crate")
}

func validateWith(name string, re *regexp.Regexp, kind string) error {
	if err := ValidatePackageName(name); err != nil {
		return err
	}
	if !re.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid %s name: %q", kind, name)
	}
	return nil
}
