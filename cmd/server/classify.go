package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/knowledge-engine/questionbank/internal/engine"
)

var (
	flagClassifyK       int
	flagClassifyExplain bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Tag question text with knowledge points",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func init() {
	classifyCmd.Flags().IntVar(&flagClassifyK, "k", 0, "Number of knowledge points (defaults to CLASSIFIER_DEFAULT_TOP_K)")
	classifyCmd.Flags().BoolVar(&flagClassifyExplain, "explain", false, "Print the complexity assessment and chosen strategy")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	eng, err := engine.NewEngine(cfg, logger, nil)
	if err != nil {
		return err
	}

	topK := cfg.Classifier.DefaultTopK
	if cmd.Flags().Changed("k") {
		topK = flagClassifyK
	}
	res, err := eng.ClassifyDetailed(cmd.Context(), strings.Join(args, " "), topK)
	if err != nil {
		return err
	}

	if flagClassifyExplain {
		a := res.Assessment
		fmt.Printf("regime=%s strategy=%s length=%d symbols=%d density=%.2f markers=%d\n",
			a.Regime, res.Strategy, a.Length, a.Symbols, a.SymbolDensity, a.Markers)
	}
	if len(res.Matches) == 0 {
		fmt.Println("No knowledge points matched.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POINT\tNAME\tCONFIDENCE\tSTRATEGY")
	for _, m := range res.Matches {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%s\n", m.PointID, m.Name, m.Confidence, m.Strategy)
	}
	return w.Flush()
}
