package main

import "house-finance/internal/cli"

func main() {
	cli.Execute()
}
