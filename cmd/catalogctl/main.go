package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag string
	rootCmd = &cobra.Command{
		Use:   "catalogctl",
		Short: "Operate the catalog search stack: import, schema, index and search",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:9080", "Search service base URL")

	rootCmd.AddCommand(newSearchCmd(), newImportCmd(), newSchemaCmd(), newIndexCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
