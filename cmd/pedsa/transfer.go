package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pedsa/pedsa/config"
	"github.com/pedsa/pedsa/pkg/corpus"
	"github.com/pedsa/pedsa/pkg/logger"
	"github.com/pedsa/pedsa/pkg/storage"
)

const exportPageSize = 500

// storageOverrides points import and export at a Badger directory.
func storageOverrides(path string) map[string]interface{} {
	out := map[string]interface{}{"storage.type": "badger"}
	if path != "" {
		out["storage.badger.path"] = path
	}
	return out
}

func newImportCmd(g *globalFlags) *cobra.Command {
	var corpusPath, dbPath string

	cmd := &cobra.Command{
		Use:     "import",
		Short:   "Load a corpus file into Badger storage",
		Example: `  pedsa import --corpus notes.yaml --db ./data/pedsa`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(config.NewLoader(), storageOverrides(dbPath))
			if err != nil {
				return err
			}
			f, err := corpus.Load(corpusPath)
			if err != nil {
				return err
			}

			store, err := openStorage(cfg.Storage, logger.Nop())
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			if err := importCorpus(cmd.Context(), store, f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries, %d relations, %d links into %s\n",
				len(f.Entries), len(f.Relations), len(f.Links), cfg.Storage.Badger.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&corpusPath, "corpus", "", "corpus file (YAML or JSON)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Badger directory (default from config)")
	_ = cmd.MarkFlagRequired("corpus")
	return cmd
}

func newExportCmd(g *globalFlags) *cobra.Command {
	var outPath, dbPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write Badger storage out as a corpus file",
		Example: `  pedsa export --db ./data/pedsa --out notes.yaml
  pedsa export --db ./data/pedsa > notes.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(config.NewLoader(), storageOverrides(dbPath))
			if err != nil {
				return err
			}

			store, err := openStorage(cfg.Storage, logger.Nop())
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			f, err := exportCorpus(cmd.Context(), store)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			format := corpus.FormatYAML
			if outPath != "" {
				fh, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", outPath, err)
				}
				defer fh.Close()
				w = fh
				format = corpus.FormatFromPath(outPath)
			}
			return corpus.Write(w, format, f)
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file; .json writes JSON (default YAML on stdout)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Badger directory (default from config)")
	return cmd
}

func importCorpus(ctx context.Context, store storage.Storage, f *corpus.File) error {
	for i := range f.Entries {
		if err := store.SaveEntry(ctx, &f.Entries[i]); err != nil {
			return fmt.Errorf("import entry %d: %w", f.Entries[i].ID, err)
		}
	}
	for i := range f.Relations {
		if err := store.SaveRelation(ctx, &f.Relations[i]); err != nil {
			return fmt.Errorf("import relation %s->%s: %w", f.Relations[i].Source, f.Relations[i].Target, err)
		}
	}
	for i := range f.Links {
		if err := store.SaveLink(ctx, &f.Links[i]); err != nil {
			return fmt.Errorf("import link %d->%d: %w", f.Links[i].Source, f.Links[i].Target, err)
		}
	}
	return nil
}

func exportCorpus(ctx context.Context, store storage.Storage) (*corpus.File, error) {
	f := &corpus.File{}

	for offset := 0; ; offset += exportPageSize {
		page, total, err := store.ListEntries(ctx, &storage.EntryFilter{Limit: exportPageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("export entries: %w", err)
		}
		for _, e := range page {
			f.Entries = append(f.Entries, *e)
		}
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}

	relations, err := store.ListRelations(ctx)
	if err != nil {
		return nil, fmt.Errorf("export relations: %w", err)
	}
	for _, r := range relations {
		f.Relations = append(f.Relations, *r)
	}

	links, err := store.ListLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("export links: %w", err)
	}
	for _, l := range links {
		f.Links = append(f.Links, *l)
	}

	if len(f.Entries) == 0 {
		return nil, errors.New("storage holds no entries")
	}
	return f, nil
}
