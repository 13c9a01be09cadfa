package env

import (
	"os"
	"strings"
)

// Prefix namespaces every variable the ledger binaries read.
const Prefix = "EARNINGS"

// Key returns the prefixed variable name, EARNINGS_<NAME>.
func Key(name string) string {
	return Prefix + "_" + strings.ToUpper(name)
}

// Get reads the prefixed variable for name, or fallback when it is unset or blank.
func Get(name, fallback string) string {
	return Raw(Key(name), fallback)
}

// Raw reads an unprefixed variable, such as one set by the hosting platform.
func Raw(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
