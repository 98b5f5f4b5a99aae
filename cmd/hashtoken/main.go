package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Prints the bcrypt digest of an admin token, ready to paste into
// ADMIN_TOKEN_HASH. Pass the token as the only argument or pipe it on
// stdin.
func main() {
	token := ""
	if len(os.Args) > 1 {
		token = os.Args[1]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("read token: %v", err)
		}
		token = strings.TrimRight(line, "\r\n")
	}
	if token == "" {
		log.Fatal("usage: hashtoken <token>")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash token: %v", err)
	}
	fmt.Println(string(hash))
}
