package main

import "github.com/nextlevelbuilder/chatrelay/cmd"

func main() {
	cmd.Execute()
}
