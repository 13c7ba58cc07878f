package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/mailblocks/pkg/blocks"
	"github.com/dmitrymomot/mailblocks/pkg/compiler"
)

func newPreviewCmd() *cobra.Command {
	var (
		subject   string
		plainText bool
	)

	cmd := &cobra.Command{
		Use:   "preview <document.json>",
		Short: "Compile a block tree document and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var doc compiler.Document
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse document: %w", err)
			}

			artifact := compiler.New(blocks.Default()).Compile(doc, subject)
			if plainText {
				fmt.Print(artifact.Text)
				return nil
			}
			fmt.Println(artifact.HTML)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "subject used for the preheader line")
	cmd.Flags().BoolVar(&plainText, "text", false, "print the plain-text alternative instead of HTML")
	return cmd
}
