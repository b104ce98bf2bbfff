// Package secrets resolves credential values referenced from the
// configuration, so webhook URLs, broker passwords, and DSNs never have
// to be written into config.yaml in the clear. Values may reference
// environment variables or files mounted by Docker and Kubernetes.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/birdnet-notifier/internal/errors"
)

// maxSecretFileSize bounds secret file reads. Secrets are tokens and
// passwords, not payloads.
const maxSecretFileSize = 64 * 1024

// ExpandString resolves environment variable references in a
// configuration value. Both ${VAR} and ${VAR:-default} are supported;
// a referenced variable that is unset and has no fallback is an error,
// so a missing token fails at load time instead of at delivery time.
// Values without a ${ pass through verbatim, a literal dollar sign in a
// password never triggers expansion.
func ExpandString(s string) (string, error) {
	if s == "" || !strings.Contains(s, "${") {
		return s, nil
	}

	var missing []string

	expanded := os.Expand(s, func(key string) string {
		name := key
		fallback := ""
		hasFallback := false

		if idx := strings.Index(key, ":-"); idx != -1 {
			name = key[:idx]
			fallback = key[idx+2:]
			hasFallback = true
		}

		value := os.Getenv(name)
		if value == "" {
			if hasFallback {
				return fallback
			}
			missing = append(missing, name)
			return ""
		}
		return value
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return expanded, nil
}

// ReadFile reads a secret from a file, typically a Docker or Kubernetes
// mounted secret under /run/secrets. Trailing newlines are stripped
// since mounted secrets usually carry one.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", errors.Newf("secret file path is empty").
			Component("secrets").
			Category(errors.CategoryValidation).
			Build()
	}

	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Newf("secret file not found: %s", cleanPath).
				Component("secrets").
				Category(errors.CategoryFileIO).
				Build()
		}
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryFileIO).
			Context("path", cleanPath).
			Build()
	}

	if !info.Mode().IsRegular() {
		return "", errors.Newf("secret path is not a regular file: %s", cleanPath).
			Component("secrets").
			Category(errors.CategoryValidation).
			Build()
	}
	if info.Size() > maxSecretFileSize {
		return "", errors.Newf("secret file too large (max %d bytes): %s", maxSecretFileSize, cleanPath).
			Component("secrets").
			Category(errors.CategoryValidation).
			Build()
	}

	// Logging is not configured yet while settings load, so the
	// permission warning goes straight to stderr.
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		fmt.Fprintf(os.Stderr, "warning: secret file is readable by group or other (perms %04o): %s\n", perm, cleanPath)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryFileIO).
			Context("path", cleanPath).
			Build()
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", errors.Newf("secret file is empty: %s", cleanPath).
			Component("secrets").
			Category(errors.CategoryValidation).
			Build()
	}

	return secret, nil
}

// Resolve determines a secret value from its possible sources. A file
// path wins over an inline value, and inline values get environment
// expansion, so all of these work:
//
//	Resolve("", "hunter2")                  literal
//	Resolve("", "${MQTT_PASSWORD}")         from the environment
//	Resolve("/run/secrets/mqtt_pw", "")     from a mounted secret
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	if value != "" {
		return ExpandString(value)
	}
	return "", nil
}
