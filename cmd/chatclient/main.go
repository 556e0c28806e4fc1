package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Singhary/chaty/client"
	"github.com/Singhary/chaty/models"
	"github.com/Singhary/chaty/topics"

	"go.uber.org/zap"
)

type Config struct {
	ServerURL string
	Token     string
	Chat      string
	Group     string
	Verbose   bool
}

func parseFlags() Config {
	var c Config
	flag.StringVar(&c.ServerURL, "server", "http://localhost:8080", "Chat server base URL")
	flag.StringVar(&c.Token, "token", os.Getenv("CHATY_TOKEN"), "Bearer token")
	flag.StringVar(&c.Chat, "chat", "", "Conversation key to follow (a--b)")
	flag.StringVar(&c.Group, "group", "", "Group id to follow")
	flag.BoolVar(&c.Verbose, "v", false, "Debug logging")
	flag.Parse()
	return c
}

func wsURL(server string) string {
	switch {
	case strings.HasPrefix(server, "https://"):
		return "wss://" + strings.TrimPrefix(server, "https://") + "/api/v1/ws"
	case strings.HasPrefix(server, "http://"):
		return "ws://" + strings.TrimPrefix(server, "http://") + "/api/v1/ws"
	}
	return server + "/api/v1/ws"
}

func printEvent(topic, event string) client.Handler {
	return func(data json.RawMessage) {
		fmt.Printf("[%s] %s %s\n", topic, event, string(data))
	}
}

func main() {
	conf := parseFlags()

	log := zap.NewNop()
	if conf.Verbose {
		log, _ = zap.NewDevelopment()
	}
	if conf.Token == "" {
		fmt.Fprintln(os.Stderr, "a token is required (-token or CHATY_TOKEN)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewAPI(conf.ServerURL, conf.Token)
	me, err := api.Me(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to identify:", err)
		os.Exit(1)
	}

	session := client.NewSession(api, me.ID)
	session.ChatKey = conf.Chat
	session.GroupID = conf.Group
	friends, groups := session.Friends, session.Groups
	groups.Evicted = func(groupID string) {
		for _, n := range groups.Notifications() {
			fmt.Println("!", n.Text)
		}
	}

	resync := func(ctx context.Context) {
		if err := session.Resync(ctx); err != nil {
			log.Warn("resync failed", zap.Error(err))
			return
		}
		fmt.Printf("synced: %d friends, %d requests, %d groups, %d chat and %d group messages\n",
			len(friends.Friends()), len(friends.Requests()), len(groups.Groups()),
			session.Chat.Len(), session.GroupChat.Len())
	}

	conn := client.New(wsURL(conf.ServerURL), client.Options{
		Token:       conf.Token,
		OnReconnect: resync,
		Logger:      log,
	})

	if err := friends.Follow(conn); err != nil {
		log.Warn("subscribe failed", zap.Error(err))
	}
	if err := groups.Follow(conn); err != nil {
		log.Warn("subscribe failed", zap.Error(err))
	}
	chatsTopic := topics.User(me.ID, topics.Chats)
	conn.Bind(chatsTopic, models.EventNewMessage, printEvent(chatsTopic, models.EventNewMessage))
	_ = conn.Subscribe(chatsTopic)

	groupsTopic := topics.User(me.ID, topics.Groups)
	for _, event := range []string{models.EventNewGroup, models.EventNewAdmin, models.EventMemberRemoved, models.EventRemovedFromGroup, models.EventNewGroupMessage} {
		conn.Bind(groupsTopic, event, printEvent(groupsTopic, event))
	}
	for _, suffix := range []string{topics.Friends, topics.IncomingRequests} {
		topic := topics.User(me.ID, suffix)
		conn.Bind(topic, models.EventNewFriend, printEvent(topic, models.EventNewFriend))
		conn.Bind(topic, models.EventIncomingFriendRequests, printEvent(topic, models.EventIncomingFriendRequests))
	}

	if conf.Chat != "" {
		topic := topics.Conversation(conf.Chat)
		conn.Bind(topic, models.EventIncomingMessage, printEvent(topic, models.EventIncomingMessage))
		if err := session.Chat.Follow(conn, topic); err != nil {
			log.Warn("subscribe failed", zap.Error(err))
		}
	}
	if conf.Group != "" {
		topic := topics.Group(conf.Group)
		conn.Bind(topic, models.EventIncomingMessage, printEvent(topic, models.EventIncomingMessage))
		if err := session.GroupChat.Follow(conn, topic); err != nil {
			log.Warn("subscribe failed", zap.Error(err))
		}
	}
	for _, topic := range conn.Topics() {
		conn.Bind(topic, models.EventSubscriptionError, printEvent(topic, models.EventSubscriptionError))
	}

	resync(ctx)
	fmt.Printf("connected as %s (%s)\n", me.Name, me.ID)
	if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "connection closed:", err)
		os.Exit(1)
	}
}
