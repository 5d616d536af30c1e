package main

import (
	"os"

	"convert_invoices/cmd/quote/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
