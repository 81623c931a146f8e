package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	jify "github.com/jify-db/jify"
)

var indexFields []string

var indexCmd = &cobra.Command{
	Use:   "index FILE --field NAME[:TYPE] [--field NAME[:TYPE] ...]",
	Short: "Build or refresh the field index for a data file",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringArrayVar(&indexFields, "field", nil, "field to index, optionally NAME:TYPE (TYPE is \"date-time\" or omitted)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	dataPath := args[0]
	if len(indexFields) == 0 {
		return fmt.Errorf("at least one --field is required")
	}

	fields := make([]jify.FieldSpec, 0, len(indexFields))
	for _, raw := range indexFields {
		name, typ, _ := strings.Cut(raw, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("invalid --field %q", raw)
		}
		fields = append(fields, jify.FieldSpec{Name: name, Type: strings.TrimSpace(typ)})
	}

	db := jify.Open(dataPath, defaultIndexPath(dataPath), jify.Config{})
	if err := db.Index(fields...); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	fmt.Printf("indexed %d field(s) in %s\n", len(fields), dataPath)
	return nil
}
