package usecase

import (
	"slices"

	"github.com/totegamma/jsonkeeper/internal/domain"
)

type RewriteDecision struct {
	Applies     bool
	IsContainer bool
}

// Classify decides whether a node with the given expanded types is rewritten,
// and whether it is the container type.
func Classify(types []string, cfg domain.RewriteConfig) RewriteDecision {
	return RewriteDecision{
		Applies:     Intersects(types, cfg.Types),
		IsContainer: cfg.ContainerType != "" && slices.Contains(types, cfg.ContainerType),
	}
}

func Intersects(types, set []string) bool {
	for _, t := range types {
		if slices.Contains(set, t) {
			return true
		}
	}
	return false
}
