package main

import "github.com/mcoot/wordgroups/internal/cli"

func main() {
	cli.Execute()
}
