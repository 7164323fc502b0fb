package enums

import (
	"fmt"
	"slices"
)

// parse maps raw input onto one of the allowed values of a string enum.
func parse[T ~string](kind string, allowed []T, value string) (T, error) {
	if i := slices.Index(allowed, T(value)); i >= 0 {
		return allowed[i], nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
