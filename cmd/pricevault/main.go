// Package main is the pricevault CLI.
//
// Usage:
//
//	go run ./cmd/pricevault serve
//	go run ./cmd/pricevault history AAPL --from 2024-01-01 --to 2024-01-31
package main

import (
	"os"

	"PriceVault/cmd/pricevault/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
