package main

import "github.com/nextlevelbuilder/clipbridge/cmd"

func main() {
	cmd.Execute()
}
