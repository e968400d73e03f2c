package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/naveedhsk/finops-ai-observability-poc/internal/cli"
)

func main() {
	// A missing .env is fine; COSTGUARD_* may come from the real environment.
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
