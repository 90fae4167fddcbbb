package main

import "github.com/outletwatch/outletwatch/cmd"

func main() {
	cmd.Execute()
}
