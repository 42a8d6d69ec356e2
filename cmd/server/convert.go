package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/knowledge-engine/questionbank/internal/storage"
)

var convertCmd = &cobra.Command{
	Use:   "convert <src> <dst>",
	Short: "Convert a corpus between .json, .jsonl and .msgpack",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := storage.Convert(args[0], args[1])
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"src": args[0], "dst": args[1]}).Debug("Corpus converted")
		fmt.Printf("Wrote %d questions to %s\n", n, args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
}
