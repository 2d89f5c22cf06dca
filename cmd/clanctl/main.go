package main

import "github.com/mcoot/clanadmin/internal/cli"

func main() {
	cli.Execute()
}
