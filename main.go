package main

import "github.com/waigayahq/waigaya/cmd"

func main() {
	cmd.Execute()
}
