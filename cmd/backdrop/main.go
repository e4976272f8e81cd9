package main

import "github.com/jmcleod/backdrop/cmd/backdrop/cmd"

func main() {
	cmd.Execute()
}
