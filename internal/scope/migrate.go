package scope

import (
	"fmt"

	"github.com/stephensong/bit/internal/migrate"
)

// Migrate runs the schema migration manifest over the scope's object store
// (spec.md §4.4.6), updating and saving scope.json only after a successful
// Persist — a scope that crashes mid-migration keeps its old recorded
// version and simply migrates again next time.
func (s *Scope) Migrate(verbose bool) (migrate.Result, error) {
	result, err := migrate.Run(s.Store, s.Meta.Version, verbose)
	if err != nil {
		return migrate.Result{}, err
	}
	if !result.Ran {
		return result, nil
	}

	if err := s.Persist(); err != nil {
		return migrate.Result{}, fmt.Errorf("scope: migrate: persist: %w", err)
	}

	s.Meta.Version = result.ToVersion
	if err := s.SaveMeta(); err != nil {
		return migrate.Result{}, fmt.Errorf("scope: migrate: save scope.json: %w", err)
	}
	return result, nil
}
