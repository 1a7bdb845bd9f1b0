package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakcache/internal/tts/engines"
	"github.com/spf13/cobra"
)

var voicesCmd = &cobra.Command{
	Use:     "voices",
	Short:   "List the Cartesia voices of your account",
	Long:    paragraph(fmt.Sprintf("\nList the Cartesia voices %s by the account of the API key.", keyword("owned"))),
	Example: paragraph("speakcache voices"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		engine := engines.NewCartesiaEngine(engines.CartesiaConfig{Logger: log.Default().WithPrefix("cartesia")})
		voices, err := engine.ListVoices(cmd.Context(), cfg.Synthesis.APIKey)
		if err != nil {
			return err
		}
		printVoices(cmd.OutOrStdout(), voices)
		return nil
	},
}

func printVoices(w io.Writer, voices []engines.Voice) {
	if len(voices) == 0 {
		fmt.Fprintln(w, faint("No voices found."))
		return
	}
	for _, v := range voices {
		fmt.Fprintf(w, "%s  %s %s\n", v.ID, keyword(v.Name), faint("("+v.Language+")"))
		if v.Description != "" {
			fmt.Fprintln(w, faint("  "+truncate(v.Description, 74)))
		}
	}
}
