package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// errPasswordPaste rejects multi-character input arriving in a single
// read: a paste into the password field is refused without changing
// any state.
var errPasswordPaste = errors.New("pasted input rejected, type the password")

// promptPassword reads a password with each typed character echoed as
// '*'. On a non-terminal stdin (scripted use) it falls back to reading
// one unechoed line.
func promptPassword(in *os.File, out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")

	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		fmt.Fprintln(out)
		return strings.TrimRight(line, "\r\n"), nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return "", err
	}
	defer term.Restore(fd, oldState)
	defer fmt.Fprintln(out)

	var password []byte
	buf := make([]byte, 64)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return "", err
		}
		if n > 1 {
			return "", errPasswordPaste
		}
		if n == 0 {
			continue
		}
		switch c := buf[0]; c {
		case '\r', '\n':
			return string(password), nil
		case 3, 4: // ^C, ^D
			return "", errors.New("password entry aborted")
		case 127, 8: // backspace
			if len(password) > 0 {
				password = password[:len(password)-1]
				fmt.Fprint(out, "\b \b")
			}
		default:
			password = append(password, c)
			fmt.Fprint(out, "*")
		}
	}
}
