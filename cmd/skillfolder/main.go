// Package main is the entrypoint for the skillfolder binary.
package main

import "github.com/chirag2653/website-to-skill-folder/cmd"

func main() {
	cmd.Execute()
}
