// Command bit is the scope-engine CLI: ingest, import, export, and manage
// versioned components against a local scope. Grounded on the teacher's
// cmd/memex-fs/main.go: flag-parsed subcommands, fatal on setup failure.
// No signal handling is installed; every subcommand runs to completion.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/remotes"
	"github.com/stephensong/bit/internal/scope"
	"github.com/stephensong/bit/internal/semverx"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "put":
		runPut(args)
	case "import":
		runImport(args)
	case "export":
		runExport(args)
	case "deprecate":
		runDeprecate(args)
	case "remove":
		runRemove(args)
	case "reset":
		runReset(args)
	case "migrate":
		runMigrate(args)
	case "list":
		runList(args)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `bit: a content-addressed component scope engine

Usage:
  bit put -id box/name -dir path [-dep box/name@version]... [-release patch|minor|major] [-exact version] [-message msg] [-force]
  bit import -id scope/box/name@version...
  bit export -id box/name... -remote name
  bit deprecate -id box/name...
  bit remove -id box/name... [-force]
  bit reset -id box/name
  bit migrate [-verbose]
  bit list`)
}

func openScope() *scope.Scope {
	dir, err := os.Getwd()
	if err != nil {
		log.Fatalf("bit: getwd: %v", err)
	}
	root, err := scope.Locate(dir)
	if err != nil {
		root = dir // first use in an empty directory: Open will initialize it here
	}

	hooks := scope.Hooks{
		PostExport:    logHook("postExport"),
		PostImport:    logHook("postImport"),
		PostDeprecate: logHook("postDeprecate"),
		PostRemove:    logHook("postRemove"),
		PostReset:     func(id string) { fmt.Printf("bit: postReset %s\n", id) },
	}

	s, err := scope.Open(root, map[string]remotes.Remote{}, hooks)
	if err != nil {
		log.Fatalf("bit: open scope: %v", err)
	}
	return s
}

func logHook(name string) func([]string) {
	return func(ids []string) {
		fmt.Printf("bit: %s %s\n", name, strings.Join(ids, ", "))
	}
}

type repeatedFlag []string

func (r *repeatedFlag) String() string { return strings.Join(*r, ",") }
func (r *repeatedFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}

func runPut(args []string) {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	id := fs.String("id", "", "box/name to put")
	dir := fs.String("dir", ".", "directory of source files")
	lang := fs.String("lang", "", "component language")
	mainFile := fs.String("main", "", "main file relative path")
	message := fs.String("message", "", "commit message")
	exact := fs.String("exact", "", "exact version to assign")
	release := fs.String("release", "patch", "release type: major|minor|patch")
	force := fs.Bool("force", false, "persist even if specs fail")
	var deps repeatedFlag
	fs.Var(&deps, "dep", "dependency box/name[@version] (repeatable)")
	fs.Parse(args)

	if *id == "" {
		log.Fatal("bit put: -id is required")
	}

	componentID, err := bitid.Parse(*id)
	if err != nil {
		log.Fatalf("bit put: %v", err)
	}

	depIDs := make([]bitid.BitId, 0, len(deps))
	for _, d := range deps {
		parsed, err := bitid.Parse(d)
		if err != nil {
			log.Fatalf("bit put: parse dep %q: %v", d, err)
		}
		depIDs = append(depIDs, parsed)
	}

	component, err := scope.NewFSComponent(componentID, depIDs, *lang, *mainFile, *dir)
	if err != nil {
		log.Fatalf("bit put: read %s: %v", *dir, err)
	}

	s := openScope()
	components, err := s.PutMany(context.Background(), []scope.ConsumerComponent{component}, scope.PutManyOptions{
		Message:      *message,
		ExactVersion: *exact,
		ReleaseType:  semverx.ReleaseType(*release),
		Force:        *force,
		Verbose:      true,
	})
	if err != nil {
		log.Fatalf("bit put: %v", err)
	}
	for _, c := range components {
		fmt.Printf("bit: put %s/%s\n", c.Box, c.Name)
	}
}

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	var ids repeatedFlag
	fs.Var(&ids, "id", "scope/box/name@version to import (repeatable)")
	fs.Parse(args)

	parsed := parseIDs(ids)
	s := openScope()
	results, err := s.ImportMany(context.Background(), parsed, scope.ImportOptions{Cache: true, Persist: true})
	if err != nil {
		log.Fatalf("bit import: %v", err)
	}
	for _, r := range results {
		fmt.Printf("bit: imported %s\n", r.ID)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var ids repeatedFlag
	fs.Var(&ids, "id", "box/name to export (repeatable)")
	remote := fs.String("remote", "", "remote name")
	fs.Parse(args)

	if *remote == "" {
		log.Fatal("bit export: -remote is required")
	}

	parsed := parseIDs(ids)
	s := openScope()
	exported, err := s.ExportMany(context.Background(), parsed, *remote)
	if err != nil {
		log.Fatalf("bit export: %v", err)
	}
	for _, id := range exported {
		fmt.Printf("bit: exported %s\n", id)
	}
}

func runDeprecate(args []string) {
	fs := flag.NewFlagSet("deprecate", flag.ExitOnError)
	var ids repeatedFlag
	fs.Var(&ids, "id", "box/name to deprecate (repeatable)")
	fs.Parse(args)

	s := openScope()
	if err := s.DeprecateMany(parseIDs(ids)); err != nil {
		log.Fatalf("bit deprecate: %v", err)
	}
}

func runRemove(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	var ids repeatedFlag
	fs.Var(&ids, "id", "box/name to remove (repeatable)")
	force := fs.Bool("force", false, "remove even if dependents exist")
	fs.Parse(args)

	s := openScope()
	result, err := s.RemoveMany(parseIDs(ids), *force)
	if err != nil {
		log.Fatalf("bit remove: %v", err)
	}
	if len(result.DependentBits) > 0 {
		fmt.Println("bit: refusing to remove, dependents exist (use -force):")
		for key, dependents := range result.DependentBits {
			fmt.Printf("  %s <- %s\n", key, strings.Join(dependents, ", "))
		}
		os.Exit(1)
	}
	for _, id := range result.Removed {
		fmt.Printf("bit: removed %s\n", id)
	}
}

func runReset(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	id := fs.String("id", "", "box/name to reset")
	fs.Parse(args)

	if *id == "" {
		log.Fatal("bit reset: -id is required")
	}
	parsed, err := bitid.Parse(*id)
	if err != nil {
		log.Fatalf("bit reset: %v", err)
	}

	s := openScope()
	if err := s.Reset(parsed); err != nil {
		log.Fatalf("bit reset: %v", err)
	}
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "log every rewritten object")
	fs.Parse(args)

	s := openScope()
	result, err := s.Migrate(*verbose)
	if err != nil {
		log.Fatalf("bit migrate: %v", err)
	}
	if !result.Ran {
		fmt.Println("bit: already current")
		return
	}
	fmt.Printf("bit: migrated to %s (%d objects rewritten)\n", result.ToVersion, result.NewRefs)
}

func runList(args []string) {
	s := openScope()
	keys, err := s.Sources.ListComponentKeys()
	if err != nil {
		log.Fatalf("bit list: %v", err)
	}
	for _, key := range keys {
		fmt.Println(key)
	}
}

func parseIDs(raw []string) []bitid.BitId {
	ids := make([]bitid.BitId, 0, len(raw))
	for _, r := range raw {
		parsed, err := bitid.Parse(r)
		if err != nil {
			log.Fatalf("bit: parse id %q: %v", r, err)
		}
		ids = append(ids, parsed)
	}
	return ids
}
