package main

import (
	"github.com/rivermist/hlsdl/internal/cli"
)

func main() {
	cli.Execute()
}
