package main

import "github.com/duocall/duocall/cmd"

func main() {
	cmd.Execute()
}
