package domain

import "fmt"

// Classification describes which pipeline a fault originated from.
type Classification string

const (
	ClassBuild      Classification = "build"
	ClassRuntime    Classification = "runtime"
	ClassRendering  Classification = "rendering"
	ClassState      Classification = "state"
	ClassExternal   Classification = "external"
	ClassAsyncFault Classification = "async_fault"
	ClassUnknown    Classification = "unknown"
)

// ParseClassification parses a config-supplied classification string.
func ParseClassification(s string) (Classification, error) {
	switch Classification(s) {
	case ClassBuild, ClassRuntime, ClassRendering, ClassState,
		ClassExternal, ClassAsyncFault, ClassUnknown:
		return Classification(s), nil
	}
	return "", fmt.Errorf("unknown classification %q", s)
}
