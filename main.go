package main

import "github.com/ValentinKolb/dbpool/cmd"

func main() {
	cmd.Execute()
}
