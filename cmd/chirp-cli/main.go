// Command chirp-cli is a tiny line-oriented REPL over the sdk package,
// standing in for the original SDK's demo console client: connect once,
// then issue "login <token>", "send <user> <text>", and "quit" at the
// prompt.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chirp-im/chirp/sdk"
)

func main() {
	addr := flag.String("gateway", "127.0.0.1:5000", "gateway TCP address")
	flag.Parse()

	client := sdk.New(sdk.Config{GatewayAddr: *addr})
	client.SetMessageCallback(func(senderID, content string) {
		fmt.Printf("\n[%s] %s\n> ", senderID, content)
	})
	client.SetKickCallback(func(reason string) {
		fmt.Printf("\nkicked: %s\n> ", reason)
	})
	client.SetDisconnectCallback(func(err error) {
		if err != nil {
			fmt.Printf("\ndisconnected: %v\n> ", err)
		} else {
			fmt.Printf("\ndisconnected\n> ")
		}
	})

	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "chirp-cli: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	fmt.Printf("connected to %s, state=%s\n", *addr, client.State())
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		switch fields[0] {
		case "login":
			if len(fields) < 2 {
				fmt.Println("usage: login <token>")
				break
			}
			client.Login(fields[1], func(err error, userID string) {
				if err != nil {
					fmt.Printf("\nlogin failed: %v\n> ", err)
					return
				}
				fmt.Printf("\nlogged in as %s\n> ", userID)
			})
		case "send":
			if len(fields) < 3 {
				fmt.Println("usage: send <user_id> <text>")
				break
			}
			if err := client.SendMessage(fields[1], fields[2]); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q (login|send|quit)\n", fields[0])
		}
		fmt.Print("> ")
	}
}
