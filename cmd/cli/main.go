package main

import "github.com/dualtree-engine/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
