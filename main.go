package main

import "github.com/stephnangue/warrant/cmd"

func main() {
	cmd.Execute()
}
