package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"stock-exchange/src/models"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Smoke client for a running exchange: subscribes to symbols over /ws and prints
// what the server pushes.

var runCmd = &cobra.Command{
	Use:   "go run ./cmd/test --addr 127.0.0.1:8000 --symbols INFY,TCS",
	Short: "Subscribe to live quotes and print them",
	Run: func(cmd *cobra.Command, args []string) {
		addr, err := cmd.Flags().GetString("addr")
		if err != nil {
			log.Fatalf("error getting addr: %v", err)
		}
		symbols, err := cmd.Flags().GetStringSlice("symbols")
		if err != nil {
			log.Fatalf("error getting symbols: %v", err)
		}
		count, err := cmd.Flags().GetInt("count")
		if err != nil {
			log.Fatalf("error getting count: %v", err)
		}

		if err := Run(addr, symbols, count); err != nil {
			log.Errorf("Error: %v", err)
			os.Exit(1)
		}
	},
}

// -----------------------------------------------------------------------------

func Run(addr string, symbols []string, count int) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	log.Infof("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	for _, s := range symbols {
		cmd := models.MClientCommand{Action: models.ActionSubscribe, Symbol: strings.TrimSpace(s)}
		if err := conn.WriteJSON(cmd); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	messages := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			messages <- msg
		}
	}()

	for received := 0; count <= 0 || received < count; received++ {
		select {
		case msg := <-messages:
			printMessage(msg)
		case err := <-readErr:
			return fmt.Errorf("read: %w", err)
		case <-interrupt:
			log.Info("Interrupted, closing")
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return nil
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func printMessage(raw []byte) {
	var envelope struct {
		Type string `json:"T"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Type == "" {
		log.Infof("notice: %s", raw)
		return
	}

	switch envelope.Type {
	case models.MessageTypeQuote:
		var q models.MQuoteMessage
		if err := json.Unmarshal(raw, &q); err != nil {
			log.Warnf("bad quote: %v", err)
			return
		}
		fmt.Printf("%s %-12s %10.2f %+8.2f (%+.2f%%) [%s]\n",
			time.UnixMilli(q.Timestamp).Format("15:04:05"), q.Symbol, q.LastPrice, q.Change, q.PChange, q.Source)
	case models.MessageTypeError:
		var e models.MErrorMessage
		json.Unmarshal(raw, &e)
		log.Warnf("%s: %s", e.Symbol, e.Message)
	default:
		log.Infof("unknown message: %s", raw)
	}
}

// -----------------------------------------------------------------------------

func main() {
	runCmd.Flags().String("addr", "127.0.0.1:8000", "exchange host:port")
	runCmd.Flags().StringSlice("symbols", []string{"INFY"}, "symbols to subscribe to")
	runCmd.Flags().Int("count", 0, "stop after this many messages (0 = until interrupted)")

	if err := runCmd.Execute(); err != nil {
		log.Fatalf("error executing command: %v", err)
	}
}
