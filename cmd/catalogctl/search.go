package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the catalog through the search service",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, _ := cmd.Flags().GetString("query")
			provider, _ := cmd.Flags().GetString("provider")
			image, _ := cmd.Flags().GetString("image")
			gen, _ := cmd.Flags().GetBool("generate")
			client := resty.New().SetBaseURL(apiFlag).SetTimeout(90 * time.Second)
			if image != "" {
				return runImageSearch(client, image, provider, gen, cmd.OutOrStdout())
			}
			return runSearch(client, query, provider, gen, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringP("query", "q", "", "Search query text")
	cmd.Flags().StringP("provider", "p", "voyage-text", "openai-text | voyage-text | voyage-text-rerank | voyage-image")
	cmd.Flags().StringP("image", "i", "", "Path of an image to search with")
	cmd.Flags().BoolP("generate", "g", false, "Ask for a generated answer")
	return cmd
}

func runSearch(client *resty.Client, query, provider string, gen bool, out io.Writer) error {
	if query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	resp, err := client.R().
		SetBody(map[string]interface{}{"query": query, "provider": provider, "generate": gen}).
		Post("/api/search")
	return writeResponse(resp, err, out)
}

func runImageSearch(client *resty.Client, path, provider string, gen bool, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if provider == "" || provider == "voyage-text" {
		provider = "voyage-image"
	}
	resp, err := client.R().
		SetFileReader("image", path, f).
		SetFormData(map[string]string{"provider": provider, "generate": fmt.Sprint(gen)}).
		Post("/api/search/image")
	return writeResponse(resp, err, out)
}

func writeResponse(resp *resty.Response, err error, out io.Writer) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}
	var pretty interface{}
	if err := json.Unmarshal(resp.Body(), &pretty); err != nil {
		_, err = out.Write(resp.Body())
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}
