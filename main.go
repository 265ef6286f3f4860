package main

import "alttext/cmd"

func main() {
	cmd.Execute()
}
