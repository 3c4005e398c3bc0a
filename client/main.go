package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"
	"github.com/wfunc/territory/logger"
	"github.com/wfunc/territory/network"
)

const usage = `commands:
  create <roomId>   create the room as your nickname
  join              join the created room
  ready | unready   toggle your ready flag
  start             start the game (host only)
  claim <id>        claim a territory
  reset             clear every claim
  raw <json>        send a frame as-is
  quit`

// buildFrame turns one line of input into a wire message.
func buildFrame(nickname, line string) ([]byte, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	msg := map[string]any{"playerNickname": nickname}
	switch fields[0] {
	case "create":
		if len(fields) < 2 {
			return nil, errors.New("usage: create <roomId>")
		}
		msg["type"] = network.MsgTypeCreateRoom
		msg["roomId"] = fields[1]
	case "join":
		msg["type"] = network.MsgTypeJoinRoom
	case "ready", "unready":
		msg["type"] = network.MsgTypePlayerReady
		msg["isReady"] = fields[0] == "ready"
	case "start":
		msg["type"] = network.MsgTypeStartGame
	case "claim":
		if len(fields) < 2 {
			return nil, errors.New("usage: claim <territoryId>")
		}
		msg["type"] = network.MsgTypeClaimTerritory
		msg["territoryId"] = fields[1]
	case "reset":
		msg = map[string]any{"type": network.MsgTypeResetGame}
	case "raw":
		return []byte(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "raw"))), nil
	default:
		return nil, fmt.Errorf("unknown command %q", fields[0])
	}
	return json.Marshal(msg)
}

func readLoop(c *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			logger.Log.Infof("Read error: %v", err)
			return
		}
		logger.Log.Infof("<- %s", message)
	}
}

func play(ctx context.Context, cmd *cli.Command) error {
	url := cmd.String("url")
	if room := cmd.String("room"); room != "" {
		url = strings.TrimSuffix(url, "/") + "/" + room
	}
	nickname := cmd.String("nickname")

	logger.Log.Infof("Connecting to %s", url)
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go readLoop(c, done)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println(usage)
	for {
		select {
		case <-done:
			return nil
		case <-interrupt:
			logger.Log.Info("Interrupt received, closing connection.")
			closeConn(c, done)
			return nil
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "quit" {
				closeConn(c, done)
				return nil
			}
			frame, err := buildFrame(nickname, line)
			if err != nil {
				fmt.Println(err)
				continue
			}
			if frame == nil {
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("write failed: %w", err)
			}
			logger.Log.Infof("-> %s", frame)
		}
	}
}

func closeConn(c *websocket.Conn, done <-chan struct{}) {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		logger.Log.Infof("Write close error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func main() {
	logger.Init("info", true)
	defer logger.Sync()

	cmd := &cli.Command{
		Name:  "territory-client",
		Usage: "play a territory room from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Value: "ws://localhost:8080/ws",
				Usage: "room server websocket endpoint",
			},
			&cli.StringFlag{
				Name:  "room",
				Usage: "named room instance; empty uses the default room",
			},
			&cli.StringFlag{
				Name:     "nickname",
				Aliases:  []string{"n"},
				Usage:    "player nickname",
				Required: true,
			},
		},
		Action: play,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Log.Fatal(err)
	}
}
