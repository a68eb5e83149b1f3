package class

import (
	"strings"

	"github.com/telatku/telatku/core"
)

// NameKey normalizes a class name for lookups: "x-ipa-1 " -> "X-IPA-1".
func NameKey(name string) string {
	return strings.ToUpper(core.CleanString(name))
}
