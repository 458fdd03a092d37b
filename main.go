package main

import "github.com/crystaldolphin/taskdeck/cmd"

func main() {
	cmd.Execute()
}
