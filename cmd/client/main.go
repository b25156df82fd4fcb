// Command crosstalk is a thin terminal client for a Crosstalk server. It
// pipes the terminal to the server, stores the resume token the server
// hands out at login, and can replay it with -resume.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ---- config/token store ----

type tokenFile struct {
	ResumeToken string    `json:"resume_token"`
	SavedAt     time.Time `json:"saved_at"`
	Server      string    `json:"server"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "crosstalk")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "crosstalk")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(addr, tok string) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{ResumeToken: tok, SavedAt: time.Now(), Server: addr})
}

func loadToken(addr string) (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.ResumeToken == "" || tf.Server != addr {
		return "", errors.New("no stored token for this server (log in first)")
	}
	return tf.ResumeToken, nil
}

// tokenMarker prefixes the line the server prints after a password login.
const tokenMarker = "Resume token: !"

func main() {
	addr := flag.String("addr", "localhost:2323", "server address")
	resume := flag.Bool("resume", false, "log in with the stored resume token")
	flag.Parse()

	nc, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer nc.Close()

	if *resume {
		tok, err := loadToken(*addr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "resume:", err)
			os.Exit(1)
		}
		if _, err := fmt.Fprintf(nc, "!%s\r\n", tok); err != nil {
			fmt.Fprintln(os.Stderr, "resume:", err)
			os.Exit(1)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		relayServer(nc, *addr)
	}()

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		if _, err := fmt.Fprintf(nc, "%s\r\n", in.Text()); err != nil {
			break
		}
	}
	_ = nc.Close()
	<-done
}

// relayServer streams server output to the terminal as it arrives (prompts
// have no trailing newline) and squirrels away any resume token the server
// hands out.
func relayServer(nc net.Conn, addr string) {
	buf := make([]byte, 4096)
	var cur []byte // current line, for token detection only
	for {
		n, err := nc.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
			for _, b := range buf[:n] {
				if b == '\n' {
					line := strings.TrimRight(string(cur), "\r")
					cur = cur[:0]
					if strings.HasPrefix(line, tokenMarker) {
						if serr := saveToken(addr, strings.TrimPrefix(line, tokenMarker)); serr != nil {
							fmt.Fprintln(os.Stderr, "token save:", serr)
						}
					}
					continue
				}
				cur = append(cur, b)
			}
		}
		if err != nil {
			fmt.Println()
			fmt.Println("Connection closed.")
			return
		}
	}
}
