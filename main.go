package main

import "github.com/example/ecovision/cmd"

func main() {
	cmd.Execute()
}
