// Command foliodb-cli is an interactive shell over a single named B+ tree
// index: point lookups, inserts, deletes, and ordered range scans.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/foliostore/foliodb/core/engine"
	"github.com/foliostore/foliodb/core/index/btree"
	"github.com/foliostore/foliodb/pkg/telemetry"
)

func main() {
	dataFile := flag.String("file", "foliodb.db", "path to the database file")
	create := flag.Bool("create", false, "create the database file if it does not exist")
	poolSize := flag.Int("pool-size", 64, "buffer pool size, in pages")
	promPort := flag.Int("metrics-port", 9090, "Prometheus metrics port (0 disables)")
	flag.Parse()

	eng, err := engine.Open(engine.Config{
		DataFile: *dataFile,
		Create:   *create,
		PoolSize: *poolSize,
		Telemetry: telemetry.Config{
			Enabled:        *promPort != 0,
			ServiceName:    "foliodb-cli",
			PrometheusPort: *promPort,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "foliodb-cli: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "foliodb> ",
		HistoryFile:     "/tmp/.foliodb-cli-history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "foliodb-cli: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Println("foliodb-cli. Type 'help' for commands, 'exit' to leave.")
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				return
			}
			fmt.Fprintf(os.Stderr, "error reading input: %v\n", err)
			continue
		}
		args := strings.Fields(strings.TrimSpace(line))
		if len(args) == 0 {
			continue
		}
		if !dispatch(eng.Tree, args) {
			return
		}
	}
}

func dispatch(tree *btree.Tree, args []string) bool {
	switch strings.ToLower(args[0]) {
	case "get":
		if len(args) < 2 {
			fmt.Println("usage: get <key>")
			return true
		}
		key, err := parseKey(args[1])
		if err != nil {
			fmt.Println(err)
			return true
		}
		if v, ok := tree.GetValue(key); ok {
			fmt.Printf("%d => {PageID:%d SlotNum:%d}\n", key, v.PageID, v.SlotNum)
		} else {
			fmt.Println("not found")
		}

	case "put":
		if len(args) < 2 {
			fmt.Println("usage: put <key>")
			return true
		}
		key, err := parseKey(args[1])
		if err != nil {
			fmt.Println(err)
			return true
		}
		if tree.Insert(key, btree.RID{PageID: int32(key), SlotNum: 0}) {
			fmt.Println("ok")
		} else {
			fmt.Println("duplicate key")
		}

	case "del":
		if len(args) < 2 {
			fmt.Println("usage: del <key>")
			return true
		}
		key, err := parseKey(args[1])
		if err != nil {
			fmt.Println(err)
			return true
		}
		tree.Remove(key)
		fmt.Println("ok")

	case "scan":
		it := tree.Begin()
		defer it.Close()
		for !it.IsEnd() {
			fmt.Printf("%d => {PageID:%d SlotNum:%d}\n", it.Key(), it.Value().PageID, it.Value().SlotNum)
			it.Next()
		}

	case "range":
		if len(args) < 2 {
			fmt.Println("usage: range <from-key>")
			return true
		}
		key, err := parseKey(args[1])
		if err != nil {
			fmt.Println(err)
			return true
		}
		it := tree.BeginAt(key)
		defer it.Close()
		for !it.IsEnd() {
			fmt.Printf("%d => {PageID:%d SlotNum:%d}\n", it.Key(), it.Value().PageID, it.Value().SlotNum)
			it.Next()
		}

	case "stats":
		fmt.Printf("empty: %v\n", tree.IsEmpty())

	case "help":
		fmt.Println("commands: get <key>, put <key>, del <key>, scan, range <key>, stats, exit")

	case "exit", "quit":
		return false

	default:
		fmt.Println("unknown command, type 'help'")
	}
	return true
}

func parseKey(s string) (btree.Key, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q: %w", s, err)
	}
	return btree.Key(n), nil
}
