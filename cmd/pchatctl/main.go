package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/pchat/internal/api"
	"github.com/matheus3301/pchat/internal/session"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	limitFlag := flag.Int("limit", 20, "number of messages to list")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	if args[0] == "sessions" {
		cmdSessions(*jsonFlag)
		return
	}

	sessionName, err := session.Resolve(*sessionFlag)
	if err != nil {
		fail(err)
	}

	c, err := api.Dial(session.SocketPath(sessionName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		cmdWatch(c, args[1:], *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			usage("pchatctl messages <chat_id>")
		}
		cmdMessages(ctx, c, args[1], *limitFlag, *jsonFlag)
	case "inject":
		if len(args) < 4 {
			usage("pchatctl inject <chat_id> <user_id> <text>")
		}
		id, err := c.InjectMessage(ctx, args[1], args[2], "", strings.Join(args[3:], " "))
		if err != nil {
			fail(err)
		}
		fmt.Println(id)
	case "typing":
		if len(args) < 4 {
			usage("pchatctl typing <chat_id> <user_id> <on|off>")
		}
		typing, err := parseSwitch(args[3])
		if err != nil {
			fail(err)
		}
		if err := c.SetTyping(ctx, args[1], args[2], typing); err != nil {
			fail(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: pchatctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                              Show session status")
	fmt.Fprintln(os.Stderr, "  messages <chat_id>                  List the latest messages of a chat")
	fmt.Fprintln(os.Stderr, "  inject <chat_id> <user_id> <text>   Store an incoming text message")
	fmt.Fprintln(os.Stderr, "  typing <chat_id> <user_id> <on|off> Set a typing indicator")
	fmt.Fprintln(os.Stderr, "  watch [prefix]                      Stream session events")
	fmt.Fprintln(os.Stderr, "  sessions                            List known sessions")
}

func usage(line string) {
	fmt.Fprintln(os.Stderr, "usage: "+line)
	os.Exit(1)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func cmdStatus(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.GetStatus(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputProto(resp)
		return
	}
	f := resp.GetFields()
	fmt.Printf("Session:  %s\n", f["session"].GetStringValue())
	fmt.Printf("Status:   %s\n", f["status"].GetStringValue())
	fmt.Printf("User:     %s\n", f["user_id"].GetStringValue())
	fmt.Printf("Messages: %d\n", int64(f["message_count"].GetNumberValue()))
	fmt.Printf("Pending:  %d\n", int64(f["pending_count"].GetNumberValue()))
	fmt.Printf("Uptime:   %s\n", time.Duration(f["uptime_ms"].GetNumberValue())*time.Millisecond)
}

func cmdMessages(ctx context.Context, c *api.Client, chatID string, limit int, jsonOut bool) {
	resp, err := c.ListMessages(ctx, chatID, limit)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputProto(resp)
		return
	}
	list := resp.GetFields()["messages"].GetListValue().GetValues()
	if len(list) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, v := range list {
		m := v.GetStructValue().GetFields()
		at := time.UnixMilli(int64(m["created_at"].GetNumberValue()))
		body := m["text"].GetStringValue()
		if typ := m["type"].GetStringValue(); typ != "text" && typ != "emoji" {
			body = "[" + typ + "]"
		}
		fmt.Printf("%s  %-20s %s\n", at.Format("2006-01-02 15:04"), m["user_fullname"].GetStringValue(), body)
	}
}

func cmdWatch(c *api.Client, args []string, jsonOut bool) {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := c.WatchEvents(ctx, prefix, func(evt *structpb.Struct) {
		if jsonOut {
			outputProto(evt)
			return
		}
		f := evt.GetFields()
		at := time.UnixMilli(int64(f["occurred_at_ms"].GetNumberValue()))
		payload, _ := json.Marshal(f["payload"].AsInterface())
		fmt.Printf("%s  %-28s %s\n", at.Format("15:04:05.000"), f["kind"].GetStringValue(), payload)
	})
	if err != nil {
		fail(err)
	}
}

func cmdSessions(jsonOut bool) {
	names, err := session.List()
	if err != nil {
		fail(err)
	}
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(names); err != nil {
			fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		}
		return
	}
	if len(names) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, name := range names {
		running := "stopped"
		if _, err := os.Stat(session.SocketPath(name)); err == nil {
			running = "running"
		}
		fmt.Printf("%-20s %s (%s)\n", name, session.Dir(name), running)
	}
}

func outputProto(m *structpb.Struct) {
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
