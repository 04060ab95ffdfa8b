package main

import (
	cmd "github.com/kerbaras/mangetsu/cmd/mangetsu"
)

func main() {
	cmd.Execute()
}
