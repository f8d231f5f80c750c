package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/pageoak/bookrag/cmd"
)

func main() {
	// Load .env if present; missing file is fine, real env wins either way.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
