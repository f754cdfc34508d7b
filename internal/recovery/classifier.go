package recovery

import (
	"strings"

	"github.com/brahim-guaali/error-boundary/internal/core/domain"
)

// Classifier infers a classification for a fault when the capturer did
// not supply one. Best-effort: callers needing a precise classification
// must set it explicitly on capture.
type Classifier func(err error) domain.Classification

// DefaultClassifier matches well-known pipeline markers in the fault
// message and falls back to runtime.
func DefaultClassifier() Classifier {
	return func(err error) domain.Classification {
		if err == nil {
			return domain.ClassUnknown
		}
		msg := strings.ToLower(err.Error())
		switch {
		case containsAny(msg, "build failed", "compile", "template"):
			return domain.ClassBuild
		case containsAny(msg, "render", "layout", "paint"):
			return domain.ClassRendering
		case containsAny(msg, "state", "store", "reducer"):
			return domain.ClassState
		default:
			return domain.ClassRuntime
		}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
