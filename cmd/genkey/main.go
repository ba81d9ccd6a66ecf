package main

import (
	"flag"
	"fmt"

	"github.com/ipnet-mesh/meshcore-hub/pkg/auth"
)

func main() {
	length := flag.Int("length", 16, "Length of the API key in bytes (will be hex encoded, so output is 2x this)")
	flag.Parse()

	key, err := auth.RandomHex(*length)
	if err != nil {
		fmt.Printf("Error generating API key: %v\n", err)
		return
	}

	hash, salt := auth.GenerateHashAndSalt(key)

	fmt.Printf("API key:      %s\n", key)
	fmt.Printf("Config entry: %s:%s\n", salt, hash)
}
