package main

import (
	"os"

	"github.com/mercasmart/catalog-search/searchservice"
)

func main() {
	if err := searchservice.Run(); err != nil {
		os.Exit(1)
	}
}
