package main

import "github.com/mcoot/tagmatch/internal/cli"

func main() {
	cli.Execute()
}
