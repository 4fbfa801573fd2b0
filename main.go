package main

import "github.com/dyike/PolyCortex/internal/cli"

func main() {
	cli.Run()
}
