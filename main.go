package main

import "github.com/tricked-dev/trickster/cmd"

func main() {
	cmd.Execute()
}
