package main

import "github.com/miniiam/apiserver/cmd"

func main() {
	cmd.Execute()
}
