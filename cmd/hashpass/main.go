// Command hashpass reads an admin password from stdin and prints the
// ADMIN_PASSWORD_HASH line for .env.
//
//	echo -n 'correct horse' | go run ./cmd/hashpass >> .env
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Zachkp/cosmic-portfolio/internal/adminauth"
)

func main() {
	if err := run(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "hashpass:", err)
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}

	hash, err := adminauth.HashPassword(password)
	if err != nil {
		return err
	}
	// Single quotes stop godotenv from expanding the $ in bcrypt hashes.
	_, err = fmt.Fprintf(out, "ADMIN_PASSWORD_HASH='%s'\n", hash)
	return err
}
