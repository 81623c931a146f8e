package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	jify "github.com/jify-db/jify"
)

var findQueries []string

var findCmd = &cobra.Command{
	Use:   "find FILE --query \"field<op>value[,...]\" [--query ... ]",
	Short: "Find records matching one or more queries",
	Long: `Each --query is a conjunction of field<op>value clauses joined by
commas; multiple --query flags form a disjunction (union) across
queries. Supported operators: =, <, >, <=, >=.`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	rootCmd.AddCommand(findCmd)
	findCmd.Flags().StringArrayVar(&findQueries, "query", nil, "predicate conjunction, e.g. \"age>=18,age<35\"")
}

func runFind(cmd *cobra.Command, args []string) error {
	dataPath := args[0]
	if len(findQueries) == 0 {
		return fmt.Errorf("at least one --query is required")
	}

	queries := make([]jify.Query, 0, len(findQueries))
	for _, raw := range findQueries {
		q, err := jify.ParseQuery(raw)
		if err != nil {
			return err
		}
		queries = append(queries, q)
	}

	db := jify.Open(dataPath, defaultIndexPath(dataPath), jify.Config{})
	records, err := db.Find(queries...)
	if err != nil {
		return fmt.Errorf("find: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
