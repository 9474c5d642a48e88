package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pedsa/pedsa/config"
	"github.com/pedsa/pedsa/pkg/corpus"
	"github.com/pedsa/pedsa/pkg/engine"
	"github.com/pedsa/pedsa/pkg/fingerprint"
	"github.com/pedsa/pedsa/pkg/storage"
)

type queryFlags struct {
	corpus   string
	enhanced string
	topK     int
}

type queryHit struct {
	ID        int64    `json:"id"`
	Score     float64  `json:"score"`
	Content   string   `json:"content"`
	Timestamp int64    `json:"timestamp,omitempty"`
	Location  string   `json:"location,omitempty"`
	Emotions  []string `json:"emotions,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
}

type queryOutput struct {
	Status engine.Status         `json:"status"`
	Hits   []queryHit            `json:"hits"`
	Stats  engine.RetrievalStats `json:"stats"`
}

func newQueryCmd(g *globalFlags) *cobra.Command {
	f := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Rank the entries of a corpus file for a query",
		Long: `query compiles a corpus file in process and prints the ranked hits as JSON.
With --enhanced the query is read from a JSON file holding weighted terms
and dimension weights instead of the positional text.`,
		Example: `  pedsa query --corpus notes.yaml "上海的会议"
  pedsa query --corpus notes.yaml --enhanced query.json --top-k 5`,
		Args: func(cmd *cobra.Command, args []string) error {
			if f.enhanced != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(config.NewLoader(), nil)
			if err != nil {
				return err
			}
			if f.topK < 0 {
				return errors.New("--top-k must not be negative")
			}
			topK := f.topK
			if topK == 0 {
				topK = cfg.Engine.TopK
			}

			file, err := corpus.Load(f.corpus)
			if err != nil {
				return err
			}

			eng := engine.New(engine.WithParams(cfg.Engine.Params))
			corpus.Build(eng, file, cfg.Engine.TagWeight)

			var res engine.Result
			if f.enhanced != "" {
				q, err := readEnhancedQuery(f.enhanced)
				if err != nil {
					return err
				}
				res = eng.RetrieveEnhanced(q, topK)
			} else {
				res = eng.Retrieve(strings.Join(args, " "), topK)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(toQueryOutput(res))
		},
	}

	cmd.Flags().StringVar(&f.corpus, "corpus", "", "corpus file (YAML or JSON)")
	cmd.Flags().StringVar(&f.enhanced, "enhanced", "", "JSON file with an enhanced query")
	cmd.Flags().IntVarP(&f.topK, "top-k", "k", 0, "number of hits (default from config)")
	_ = cmd.MarkFlagRequired("corpus")
	return cmd
}

func readEnhancedQuery(path string) (engine.EnhancedQuery, error) {
	var q engine.EnhancedQuery
	data, err := os.ReadFile(path)
	if err != nil {
		return q, fmt.Errorf("read enhanced query: %w", err)
	}
	if err := json.Unmarshal(data, &q); err != nil {
		return q, fmt.Errorf("parse enhanced query %s: %w", path, err)
	}
	return q, nil
}

func toQueryOutput(res engine.Result) queryOutput {
	out := queryOutput{
		Status: res.Status,
		Hits:   make([]queryHit, len(res.Hits)),
		Stats:  res.Stats,
	}
	for i, h := range res.Hits {
		hit := queryHit{
			ID:        int64(h.NodeID),
			Score:     h.Score,
			Content:   h.Content,
			Timestamp: h.Timestamp,
		}
		if e, ok := h.Ref.(*storage.Entry); ok && e != nil {
			hit.Location = e.Location
			hit.Emotions = fingerprint.ParseEmotions(e.Emotions).Names()
			hit.Keywords = e.Keywords
		}
		out.Hits[i] = hit
	}
	return out
}
