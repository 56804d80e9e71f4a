package main

import (
	"github.com/sirupsen/logrus"

	"ticket-settlement/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		logrus.Fatal(err)
	}
}
