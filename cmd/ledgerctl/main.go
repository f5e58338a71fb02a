package main

import "github.com/corebank/ledger-service/internal/cli"

func main() {
	cli.Execute()
}
