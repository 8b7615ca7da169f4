// Package main is the entry point for the gba2xm API server
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/james-see/gba2xm/pkg/api"
)

var version = "dev"

func main() {
	port := flag.Int("port", 8080, "Server port")
	tracker := flag.String("tracker-name", "gba2xm-"+version, "Tracker name written into modules")
	flag.Parse()

	fmt.Printf("Starting gba2xm API server on port %d...\n", *port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", *port)

	if err := api.StartServer(*port, *tracker); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
