package main

import (
	"xchain-radar/internal/cli"
)

func main() {
	cli.Execute()
}
