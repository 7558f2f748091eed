package main

import "github.com/sarathavasarala/markly/cmd"

func main() {
	cmd.Execute()
}
