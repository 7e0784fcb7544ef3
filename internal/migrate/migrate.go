// Package migrate runs the ordered schema-migration manifest over raw
// stored objects (spec.md §4.4.6). Grounded on the teacher's CommitLog
// (internal/dag/commitlog.go): an ordered, append-only log of transforms
// applied to content-addressed objects, generalized here from "append a
// commit" to "rewrite every raw object a step's transform touches".
package migrate

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/stephensong/bit/internal/objectstore"
	"github.com/stephensong/bit/internal/objtypes"
)

// CurrentVersion is the schema version this binary writes. A scope recording
// an older version is a migration candidate; a scope recording this version
// or newer is already current.
const CurrentVersion = "0.11.0"

// Transform rewrites one raw object's body bytes for objects of the given
// tag, returning the new body and whether it actually changed anything
// (migrations that don't touch a given tag report unchanged rather than
// re-staging an identical object under a new timestamp-free digest, which
// would be a no-op anyway, but skipping it avoids needless I/O).
type Transform func(tag objtypes.Tag, body []byte) (newBody []byte, changed bool, err error)

// Step is one manifest entry: every object is rewritten when the scope's
// recorded version equals From, advancing it toward To.
type Step struct {
	From      string
	To        string
	Transform Transform
}

// manifest is the ordered list of schema migrations this binary knows.
// Entries are applied in order; a scope migrates one step at a time until
// its recorded version reaches CurrentVersion, so a scope several versions
// behind walks every intervening step.
//
// The one entry carried here is illustrative: 0.10.9 introduced
// Version.packageDependencies; a Version this binary writes omits that
// field when it is empty, so re-encoding it yields identical bytes and
// this step is a normalizing no-op for objects this binary itself ever
// wrote. A body carrying an explicit null for the field is re-encoded
// without it.
// It exists to give the runner a concrete, exercised transform rather than
// an empty manifest.
var manifest = []Step{
	{
		From: "0.10.9",
		To:   CurrentVersion,
		Transform: func(tag objtypes.Tag, body []byte) ([]byte, bool, error) {
			if tag != objtypes.TagVersion {
				return body, false, nil
			}
			v, err := objtypes.DecodeVersion(objtypes.EncodeRaw(tag, body))
			if err != nil {
				return nil, false, err
			}
			if v.PackageDependencies != nil {
				return body, false, nil
			}
			v.PackageDependencies = map[string]string{}
			raw, err := v.Encode()
			if err != nil {
				return nil, false, err
			}
			_, newBody, err := objtypes.PeekTag(raw)
			if err != nil {
				return nil, false, err
			}
			if string(newBody) == string(body) {
				return body, false, nil
			}
			return newBody, true, nil
		},
	},
}

// Result reports what Run did.
type Result struct {
	Ran      bool
	Success  bool
	NewRefs  int
	OldRefs  int
	ToVersion string
}

// Run applies every manifest step whose From matches recordedVersion (and
// every step chained after it) to every raw object in store, staging
// replacements and removing superseded refs. It does not call Persist; the
// caller (Scope.Migrate) updates scope.json only after a successful Persist.
func Run(store *objectstore.Store, recordedVersion string, verbose bool) (Result, error) {
	current, err := semver.NewVersion(CurrentVersion)
	if err != nil {
		return Result{}, fmt.Errorf("migrate: parse current version: %w", err)
	}
	recorded, err := semver.NewVersion(recordedVersion)
	if err != nil {
		return Result{}, fmt.Errorf("migrate: parse recorded version %q: %w", recordedVersion, err)
	}

	if !recorded.LessThan(current) {
		return Result{Ran: false, Success: true, ToVersion: recordedVersion}, nil
	}

	steps := stepsFrom(recordedVersion)
	if len(steps) == 0 {
		// Nothing in the manifest bridges this version; treat the scope as
		// already current rather than silently failing to advance it.
		return Result{Ran: false, Success: true, ToVersion: recordedVersion}, nil
	}

	refs, err := store.ListRawObjects()
	if err != nil {
		return Result{}, fmt.Errorf("migrate: list objects: %w", err)
	}

	result := Result{Ran: true}
	for _, ref := range refs {
		tag, body, err := store.LoadRawObject(ref)
		if err != nil {
			return Result{}, fmt.Errorf("migrate: load %s: %w", ref, err)
		}

		changedAny := false
		for _, step := range steps {
			newBody, changed, err := step.Transform(tag, body)
			if err != nil {
				return Result{}, fmt.Errorf("migrate: transform %s (%s): %w", ref, tag, err)
			}
			if changed {
				body = newBody
				changedAny = true
			}
		}
		if !changedAny {
			continue
		}

		newRaw := objtypes.EncodeRaw(tag, body)
		if _, err := store.Add(newRaw); err != nil {
			return Result{}, fmt.Errorf("migrate: stage %s: %w", ref, err)
		}
		store.Remove(ref)
		result.NewRefs++
		result.OldRefs++
		if verbose {
			fmt.Printf("bit: migrate: rewrote %s (%s)\n", ref, tag)
		}
	}

	result.Success = true
	result.ToVersion = CurrentVersion
	return result, nil
}

func stepsFrom(recordedVersion string) []Step {
	out := make([]Step, 0, len(manifest))
	from := recordedVersion
	for _, step := range manifest {
		if step.From != from {
			continue
		}
		out = append(out, step)
		from = step.To
	}
	return out
}
