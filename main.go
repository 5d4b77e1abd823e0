package main

import (
	"github.com/shotarokuramata/bort-scraping/cmd"
)

func main() {
	cmd.Execute()
}
