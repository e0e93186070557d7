package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"

	"github.com/omochice/monrst/internal/client"
	"github.com/omochice/monrst/internal/client/ws"
	"github.com/omochice/monrst/internal/model"
	"github.com/omochice/monrst/pkg/protocol"
)

var (
	infoStyle    = color.New(color.FgCyan)
	errorStyle   = color.New(color.FgRed, color.OpBold)
	messageStyle = color.New(color.FgGreen)
	promptStyle  = color.New(color.BgBlack, color.FgGreen)
)

// session is what the terminal remembers between commands.
type session struct {
	mu      sync.Mutex
	me      string
	channel string
}

func (s *session) get() (me, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.me, s.channel
}

func (s *session) setMe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.me = id
}

func (s *session) setChannel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = id
}

func main() {
	// Parse command-line flags
	serverAddr := flag.String("server", "localhost:13009", "Server address (e.g., localhost:13009 or wss://host:13009)")
	username := flag.String("username", "", "Username for chat")
	formatName := flag.String("format", "json", "Payload format: json or binary")
	useTLS := flag.Bool("tls", false, "Connect with TLS")
	insecure := flag.Bool("insecure", false, "Skip certificate verification (self-signed servers)")
	flag.Parse()

	if *username == "" {
		log.Fatal("Username is required. Use -username flag")
	}
	format, err := protocol.ParseFormat(*formatName)
	if err != nil {
		log.Fatal(err)
	}

	options := ws.Options{Format: format, Kind: model.ClientKindTui}
	if *useTLS {
		options.TLSConfig = &tls.Config{InsecureSkipVerify: *insecure}
	}
	c, err := ws.New(*serverAddr, options)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = c.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer c.Disconnect()

	state := &session{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range c.Events() {
			show(state, event)
		}
		errorStyle.Println("*** connection closed ***")
	}()

	if err := c.RegisterUser(*username); err != nil {
		log.Fatalf("Failed to register: %v", err)
	}

	infoStyle.Printf("Connected to %s (%s, protocol %s)\n", *serverAddr, format, protocol.ServerVersion())
	fmt.Println(promptStyle.Render("Commands: /dm <user-id>  /join <channel-id>  /delete  /ping  /quit"))

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" || text == "/exit" {
			break
		}
		if err := execute(c, state, text); err != nil {
			errorStyle.Printf("! %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Error reading input: %v", err)
	}

	c.Disconnect()
	<-done
	log.Println("Disconnected from server")
}

func execute(c client.Client, state *session, text string) error {
	me, channel := state.get()
	command, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/ping":
		return c.Ping()
	case "/dm":
		if arg == "" {
			return fmt.Errorf("usage: /dm <user-id>")
		}
		return c.OpenDirectMessage(me, arg)
	case "/join":
		if arg == "" {
			return fmt.Errorf("usage: /join <channel-id>")
		}
		state.setChannel(arg)
		infoStyle.Printf("*** now writing to %s ***\n", arg)
		return nil
	case "/delete":
		if arg == "" {
			arg = channel
		}
		if arg == "" {
			return fmt.Errorf("no channel to delete")
		}
		return c.DeleteChannel(arg)
	}

	if strings.HasPrefix(command, "/") {
		return fmt.Errorf("unknown command %s", command)
	}
	if channel == "" {
		return fmt.Errorf("open a channel first with /dm or /join")
	}
	return c.SendMessage(channel, me, text)
}

func show(state *session, event protocol.Event) {
	switch event.Kind {
	case protocol.EventPong:
		infoStyle.Println("*** pong ***")
	case protocol.EventUserRegistered:
		state.setMe(event.ID)
		infoStyle.Printf("*** registered as %s#%s (id %s) ***\n", event.Username, event.Discriminator, event.ID)
	case protocol.EventChannelOpened:
		state.setChannel(event.ID)
		infoStyle.Printf("*** direct messages with %s opened (channel %s) ***\n", event.Peer, event.ID)
	case protocol.EventMessageSent:
		messageStyle.Printf("[%s] %s: %s\n", short(event.Channel), short(event.Author), event.Content)
	case protocol.EventChannelDeleted:
		infoStyle.Printf("*** channel %s deleted ***\n", event.Channel)
	case protocol.EventError:
		errorStyle.Printf("! %s\n", event.Reason)
	}
}

// short keeps the first block of a UUID, enough to tell people apart.
func short(id string) string {
	head, _, _ := strings.Cut(id, "-")
	return head
}
