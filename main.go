package main

import "github.com/gatekeep-io/gatekeep/cli/cmd"

func main() {
	cmd.Execute()
}
