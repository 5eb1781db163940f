package main

import "vinter/internal/vinter"

func main() {
	vinter.Main()
}
