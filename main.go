package main

import "github.com/crystaldolphin/busbridge/cmd"

func main() {
	cmd.Execute()
}
