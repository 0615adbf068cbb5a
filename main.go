package main

import "github.com/kozaktomas/touch-guard/cmd"

func main() {
	cmd.Execute()
}
