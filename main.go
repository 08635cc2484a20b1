package main

import "debotbrowser/cmd"

func main() {
	cmd.Execute()
}
