package main

import "github.com/nextlevelbuilder/goclaw-core/cmd"

func main() {
	cmd.Execute()
}
