package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/disiqueira/gotree/v3"
	"github.com/joho/godotenv"

	"studyvault/internal/config"
	"studyvault/internal/domain"
	"studyvault/internal/logger"
	"studyvault/internal/storage"
)

const usage = `
Usage:
   vaultctl [-v] <ACTION>

 ACTIONs:
   reconcile   repair the metadata index and backup against the storage tree
   tree        print subjects, categories, units and files

`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	flags := flag.NewFlagSet("vaultctl", flag.ContinueOnError)
	flags.SetOutput(errOut)
	flags.Usage = func() {
		io.WriteString(flags.Output(), usage)
		flags.PrintDefaults()
	}
	verbose := flags.Bool("v", false, "Log what the store does")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return 2
	}

	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(errOut, "load config: %v\n", err)
		return 1
	}

	log := logger.Nop()
	if *verbose {
		if log, err = logger.New("dev"); err != nil {
			fmt.Fprintf(errOut, "init logger: %v\n", err)
			return 1
		}
		defer log.Sync()
	}

	store, err := storage.NewStore(storage.Options{
		StorageDir:                cfg.StorageDir,
		MetadataFile:              cfg.MetadataFile,
		BackupFile:                cfg.BackupFile,
		MaxUploadBytes:            cfg.MaxUploadBytes,
		LegacyCategoryPassthrough: cfg.LegacyCategoryPassthrough,
	}, log)
	if err != nil {
		fmt.Fprintf(errOut, "open store: %v\n", err)
		return 1
	}

	switch action := flags.Arg(0); action {
	case "reconcile":
		return reconcile(store, out, errOut)
	case "tree":
		views, err := store.Sync()
		if err != nil {
			fmt.Fprintf(errOut, "scan storage: %v\n", err)
			return 1
		}
		io.WriteString(out, renderTree(cfg.StorageDir, views))
		return 0
	default:
		fmt.Fprintf(errOut, "unknown action %q\n", action)
		flags.Usage()
		return 2
	}
}

func reconcile(store *storage.Store, out, errOut io.Writer) int {
	changed, err := store.Reconcile()
	if err != nil {
		fmt.Fprintf(errOut, "reconcile: %v\n", err)
		return 1
	}
	if changed {
		fmt.Fprintln(out, "repairs written")
	} else {
		fmt.Fprintln(out, "already consistent")
	}
	return 0
}

// renderTree draws subject > category > [unit >] file, each file labelled
// with its display title.
func renderTree(root string, views []storage.SubjectView) string {
	tree := gotree.New(root)
	for _, v := range views {
		subject := tree.Add(fmt.Sprintf("%s (%s)", v.Name, v.Source))
		categories := map[domain.Category]gotree.Tree{}
		units := map[string]gotree.Tree{}

		for _, f := range v.Files {
			cat, ok := categories[f.Category]
			if !ok {
				cat = subject.Add(string(f.Category))
				categories[f.Category] = cat
			}
			parent := cat
			if f.Category == domain.CategoryNotes {
				unit, ok := units[f.Unit]
				if !ok {
					unit = cat.Add(f.Unit)
					units[f.Unit] = unit
				}
				parent = unit
			}
			parent.Add(fmt.Sprintf("%s  [%s, %s]", f.Title, f.StoredFileName, f.FileSizeFormatted))
		}
	}
	return tree.Print()
}
