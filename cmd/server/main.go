// Package main is the entry point for the sf2opxy API server
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/james-see/sf2opxy/pkg/api"
)

func main() {
	port := flag.Int("port", 8080, "Server port")
	jsonLogs := flag.Bool("json-logs", false, "Log as JSON")
	flag.Parse()

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if *jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	fmt.Printf("Starting sf2opxy API server on port %d...\n", *port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", *port)

	if err := api.NewRouter(logger).Run(fmt.Sprintf(":%d", *port)); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
