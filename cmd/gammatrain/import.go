package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ramonehamilton/gammatrain/internal/extract"
	"github.com/ramonehamilton/gammatrain/internal/storage"
)

const importBatch = 1000

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	var c common
	c.register(fs)
	source := fs.String("source", "", "Source tag for the records (default: file name)")
	replace := fs.Bool("replace", false, "Delete records previously imported with the same source")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("no input files given")
	}

	e, err := c.load()
	if err != nil {
		return err
	}
	db, err := e.openDB()
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	ctx := context.Background()
	for _, path := range fs.Args() {
		tag := *source
		if tag == "" {
			tag = filepath.Base(path)
		}
		if *replace {
			n, err := db.Matches().DeleteSource(ctx, tag)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Printf("Deleted %d records previously imported from %s", n, tag)
			}
		}
		n, err := importFile(ctx, db.Matches(), e.fz, path, tag)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		fmt.Printf("Imported %d records from %s\n", n, path)
	}

	total, err := db.Matches().Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Database now holds %d records\n", total)
	return nil
}

// importFile checks every record against the featurizer before storing it
// in batches, so a bad line stops the import with nothing half-written from
// its batch.
func importFile(ctx context.Context, repo *storage.MatchRepository, fz extract.Featurizer, path, source string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var (
		batch    []*extract.Record
		imported int
		unknown  int
	)
	for rec, err := range extract.Records(f) {
		if err != nil {
			return imported, err
		}
		m, rctx, err := extract.ToMatch(fz, rec)
		if err != nil {
			return imported, err
		}
		if len(m.Teams) < 2 || m.Winner < 0 || m.Winner >= len(m.Teams) {
			return imported, fmt.Errorf("record %d: needs two candidates and a chosen one in range", imported+len(batch)+1)
		}
		unknown += len(rctx.Unresolved)

		batch = append(batch, rec)
		if len(batch) == importBatch {
			if err := repo.Save(ctx, source, batch...); err != nil {
				return imported, err
			}
			imported += len(batch)
			batch = batch[:0]
		}
	}
	if err := repo.Save(ctx, source, batch...); err != nil {
		return imported, err
	}
	imported += len(batch)

	if unknown > 0 {
		log.Printf("%s: %d feature names are not in the registry; they are stored but ignored in training", path, unknown)
	}
	return imported, nil
}
