package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, paintError(fmt.Sprintf("Error: %v", err)))
		os.Exit(1)
	}
}
