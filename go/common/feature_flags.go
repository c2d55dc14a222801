package common

import (
	"sort"
	"strings"
)

// FeatureFlags holds the resolved setting of every known or explicitly
// provided flag.
type FeatureFlags map[string]bool

// ParseFeatureFlags parses a comma-separated list of flag names and combines that with a
// map describing default flag settings in the absence of any flags. A flag name can be
// prefixed with 'no_' to explicitly set it to a false value, in case the default is (or
// might soon become) true.
func ParseFeatureFlags(flags string, defaults map[string]bool) FeatureFlags {
	var settings = make(FeatureFlags)
	for k, v := range defaults {
		settings[k] = v
	}
	for _, flagName := range strings.Split(flags, ",") {
		flagName = strings.TrimSpace(flagName)
		var flagValue = true
		if strings.HasPrefix(flagName, "no_") {
			flagName = strings.TrimPrefix(flagName, "no_")
			flagValue = false
		}
		if flagName != "" {
			settings[flagName] = flagValue
		}
	}
	return settings
}

// Enabled reports whether the named flag is set. Unknown flags are disabled.
func (f FeatureFlags) Enabled(name string) bool {
	return f[name]
}

// String renders the flags in the same syntax accepted by ParseFeatureFlags,
// sorted by name.
func (f FeatureFlags) String() string {
	var names = make([]string, 0, len(f))
	for name, on := range f {
		if on {
			names = append(names, name)
		} else {
			names = append(names, "no_"+name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.TrimPrefix(names[i], "no_") < strings.TrimPrefix(names[j], "no_")
	})
	return strings.Join(names, ",")
}
