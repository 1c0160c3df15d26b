package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/caret/internal/runtime"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported languages and the walk each one gets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return outputResult(CLIResult{Command: "languages", Results: listLanguages()})
	},
}

func listLanguages() []CLILanguage {
	var langs []CLILanguage
	for _, name := range runtime.Languages() {
		langs = append(langs, CLILanguage{
			Name:       name,
			Variant:    runtime.VariantForLanguage(name).String(),
			Extensions: runtime.Extensions(name),
		})
	}
	return langs
}
