package main

import "solv/src/cmd"

func main() {
	cmd.Execute()
}
