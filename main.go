package main

import "github.com/mempirate/delver/cli"

func main() {
	cli.Execute()
}
