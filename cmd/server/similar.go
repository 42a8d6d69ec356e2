package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/knowledge-engine/questionbank/internal/engine"
	"github.com/knowledge-engine/questionbank/internal/search"
	"github.com/knowledge-engine/questionbank/internal/storage"
)

var (
	flagSimilarCorpus     string
	flagSimilarID         string
	flagSimilarType       string
	flagSimilarSubject    string
	flagSimilarDifficulty int
	flagSimilarK          int
	flagSimilarThreshold  float64
	flagSimilarExclude    string
)

var similarCmd = &cobra.Command{
	Use:   "similar [stem]",
	Short: "Find questions similar to a stem or to an indexed question",
	Args:  cobra.ArbitraryArgs,
	RunE:  runSimilar,
}

func init() {
	similarCmd.Flags().StringVar(&flagSimilarCorpus, "corpus", "", "Corpus file (.json, .jsonl, .msgpack); defaults to CORPUS_PATH")
	similarCmd.Flags().StringVar(&flagSimilarID, "id", "", "Use an indexed question as the query")
	similarCmd.Flags().StringVar(&flagSimilarType, "type", "", "Query question type")
	similarCmd.Flags().StringVar(&flagSimilarSubject, "subject", "", "Query subject")
	similarCmd.Flags().IntVar(&flagSimilarDifficulty, "difficulty", 0, "Query difficulty (1-5)")
	similarCmd.Flags().IntVar(&flagSimilarK, "k", 0, "Number of results (defaults to SIMILARITY_DEFAULT_TOP_K)")
	similarCmd.Flags().Float64Var(&flagSimilarThreshold, "threshold", 0, "Minimum score (defaults to SIMILARITY_DEFAULT_THRESHOLD)")
	similarCmd.Flags().StringVar(&flagSimilarExclude, "exclude", "", "Question id to leave out of the results")
	rootCmd.AddCommand(similarCmd)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	stem := strings.Join(args, " ")
	if stem == "" && flagSimilarID == "" {
		return fmt.Errorf("a stem argument or --id is required")
	}

	path := flagSimilarCorpus
	if path == "" {
		path = cfg.Corpus.Path
	}
	if path == "" {
		return fmt.Errorf("no corpus: pass --corpus or set CORPUS_PATH")
	}
	fs, err := storage.NewFileStorage(path)
	if err != nil {
		return err
	}
	defer fs.Close()
	questions, err := fs.Load()
	if err != nil {
		return err
	}

	eng, err := engine.NewEngine(cfg, logger, nil)
	if err != nil {
		return err
	}
	if _, err := eng.BuildIndex(cmd.Context(), questions); err != nil {
		return err
	}

	opts := eng.DefaultSimilarOptions()
	if cmd.Flags().Changed("k") {
		opts.TopK = flagSimilarK
	}
	if cmd.Flags().Changed("threshold") {
		opts.Threshold = flagSimilarThreshold
	}
	opts.ExcludeID = flagSimilarExclude

	var results []search.Result
	if flagSimilarID != "" {
		results, err = eng.FindSimilarByID(cmd.Context(), flagSimilarID, opts)
	} else {
		results, err = eng.FindSimilar(cmd.Context(), search.Question{
			Stem:       stem,
			Type:       search.ParseQuestionType(flagSimilarType),
			Subject:    search.ParseSubject(flagSimilarSubject),
			Difficulty: flagSimilarDifficulty,
		}, opts)
	}
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No similar questions found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCORE\tTEXT\tTYPE\tDIFF\tSUBJ\tSTEM")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.3f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
			r.Question.ID, r.Score,
			r.Components.Text, r.Components.Type, r.Components.Difficulty, r.Components.Subject,
			truncate(r.Question.Stem, 60))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
