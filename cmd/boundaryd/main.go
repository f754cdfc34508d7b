package main

import "github.com/brahim-guaali/error-boundary/internal/cli"

func main() {
	cli.Execute()
}
