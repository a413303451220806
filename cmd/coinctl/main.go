package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/coinhunt/roomengine/internal/api"
	"github.com/coinhunt/roomengine/internal/config"
	"github.com/coinhunt/roomengine/internal/logging"
	"github.com/coinhunt/roomengine/internal/transport"
	"github.com/coinhunt/roomengine/pkg/core"
	"github.com/coinhunt/roomengine/pkg/streaming"
)

const usage = `usage: coinctl <command> [args]

commands:
  health                         check the server is up
  rooms                          list room names
  room <room>                    show one room
  coins <room>                   count available coins
  nearby <room> <x> <y> <radius> list coins within radius meters
  generate <rooms.json>          generate every room in the file
  watch <room>...                stream room events
  grab <room> <id>               grab a coin

environment:
  COINCTL_URL  server base URL (default http://localhost:3000)
  COINCTL_KEY  api key for generate
`

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "coinctl:", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid arguments")

func baseURL() string {
	if u := os.Getenv("COINCTL_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "http://localhost:3000"
}

// wsURL maps an http(s) base URL onto the websocket endpoint.
func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}
	return base + "/ws"
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}
	client := api.New(baseURL(), os.Getenv("COINCTL_KEY"))
	cmd, rest := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "health":
		if err := client.Healthcheck(); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
		return nil

	case "rooms":
		names, err := client.Rooms()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil

	case "room":
		if len(rest) != 1 {
			return errUsage
		}
		summary, err := client.Room(rest[0])
		if err != nil {
			return err
		}
		return printJSON(out, summary)

	case "coins":
		if len(rest) != 1 {
			return errUsage
		}
		n, err := client.CoinsAvailable(rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, n)
		return nil

	case "nearby":
		if len(rest) != 4 {
			return errUsage
		}
		x, errX := strconv.Atoi(rest[1])
		y, errY := strconv.Atoi(rest[2])
		radius, errR := strconv.ParseFloat(rest[3], 64)
		if err := errors.Join(errX, errY, errR); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		coins, err := client.Nearby(rest[0], x, y, radius)
		if err != nil {
			return err
		}
		return printJSON(out, coins)

	case "generate":
		if len(rest) != 1 {
			return errUsage
		}
		rooms, err := config.LoadRooms(rest[0])
		if err != nil {
			fmt.Fprintln(out, "some rooms were skipped:", err)
		}
		var errs []error
		for _, rc := range rooms {
			summary, err := client.Generate(rc)
			if err != nil {
				errs = append(errs, fmt.Errorf("room %q: %w", rc.Room, err))
				continue
			}
			fmt.Fprintf(out, "%s: %d coins\n", summary.Room, summary.CoinsAvailable)
		}
		return errors.Join(errs...)

	case "watch":
		if len(rest) == 0 {
			return errUsage
		}
		return watch(ctx, rest, out)

	case "grab":
		if len(rest) != 2 {
			return errUsage
		}
		id, err := strconv.Atoi(rest[1])
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return grab(ctx, rest[0], id, out)
	}

	fmt.Fprint(out, usage)
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func dial() (*transport.Client, error) {
	logger := logging.NewSlogManager().Setup(nil, os.Getenv("COINCTL_LOG_LEVEL"), nil)
	c := transport.NewClient(logger)
	if err := c.Dial(wsURL(baseURL())); err != nil {
		return nil, err
	}
	return c, nil
}

// watch joins the given rooms and prints every event until ctx ends.
func watch(ctx context.Context, rooms []string, out io.Writer) error {
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	for _, room := range rooms {
		if err := c.Join(room); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-c.Events():
			if !ok {
				return nil
			}
			if err := printJSON(out, env); err != nil {
				return err
			}
		}
	}
}

// grab joins room, sends one grab and waits for the matching coinGrabbed.
// A coin somebody else already took produces no event, so the wait ends
// with ctx.
func grab(ctx context.Context, room string, id int, out io.Writer) error {
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Join(room); err != nil {
		return err
	}
	if err := c.Send(streaming.TypeGrabCoin, id, room); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("coin %d in %q was not grabbed", id, room)
		case env, ok := <-c.Events():
			if !ok {
				return errors.New("connection closed")
			}
			switch env.Type {
			case streaming.TypeError:
				return printJSON(out, env)
			case streaming.TypeCoinGrabbed:
				if coin, ok := grabbedCoin(env); ok && coin.ID == id && coin.Room == room {
					fmt.Fprintf(out, "grabbed coin %d in %s\n", id, room)
					return nil
				}
			}
		}
	}
}

func grabbedCoin(env streaming.Envelope) (core.Coin, bool) {
	var coin core.Coin
	if len(env.Args) == 0 {
		return coin, false
	}
	if err := json.Unmarshal(env.Args[0], &coin); err != nil {
		return coin, false
	}
	return coin, true
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
