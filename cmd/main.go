/*
Package main is the entry point for the Streamify command line client.

It is responsible for loading configuration, initializing the global logging system,
wiring the backend client, the invalidation bus and the realtime provider hubs, and
running one subcommand. Interrupt signals (SIGINT, SIGTERM) cancel the running
command and the provider connections are released before exit.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"streamify/internal/app/backend"
	"streamify/internal/app/call"
	"streamify/internal/app/chat"
	"streamify/internal/app/events"
	"streamify/internal/app/feed"
	"streamify/internal/app/friendreq"
	"streamify/internal/app/notify"
	"streamify/internal/app/session"
	"streamify/internal/app/user"
	"streamify/internal/app/video"
	"streamify/internal/configs"
	"streamify/internal/pkg/errs"
	"streamify/internal/pkg/logx"
)

const usage = `Usage: streamify [flags] <command> [args]

Commands:
  incoming                 list pending friend requests you received
  outgoing                 list pending friend requests you sent
  friends                  list your friends
  recommended              list users you may want to befriend
  accept <requestId>       accept a received friend request
  reject <requestId>       reject a received friend request
  chat <peerId> [message]  open the conversation with a friend, send message or follow it
  call <callId>            join a video call until it ends
  signout                  end the backend session

Flags:
`

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	// Load configuration from .env and environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(exitError)
	}

	flags := pflag.NewFlagSet("streamify", pflag.ContinueOnError)
	logLevel := flags.String("log-level", cfg.LogLevel, "override LOG_LEVEL (debug, info, warn, error)")
	startCall := flags.Bool("start-call", false, "chat: post a video call invitation to the conversation")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(exitOK)
		}
		os.Exit(exitUsage)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment(), *logLevel)
	logx.Logger().Debug().
		Str("environment", cfg.Environment).
		Str("api_base_url", cfg.APIBaseURL).
		Str("chat_provider_url", cfg.ChatProviderURL).
		Str("video_provider_url", cfg.VideoProviderURL).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app, err := newApp(cfg, os.Stdout, os.Stderr)
	if err != nil {
		stop()
		logx.Fatal(err, "Failed to initialize client")
	}

	code := app.run(ctx, flags.Args(), *startCall)
	if code == exitUsage {
		flags.Usage()
	}

	app.shutdown()
	stop()
	os.Exit(code)
}

// app holds the wired components shared by every command.
type app struct {
	cfg    *configs.AppConfig
	out    io.Writer
	errOut io.Writer
	api    *backend.Client
	bus    *events.Bus

	// notifier records whether a component already showed the failure.
	notifier *notify.Tracker
	chatHub  *chat.Hub
	videoHub *video.Hub
}

func newApp(cfg *configs.AppConfig, out, errOut io.Writer) (*app, error) {
	api, err := backend.New(backend.Options{
		BaseURL:      cfg.APIBaseURL,
		SessionToken: cfg.SessionToken,
		Timeout:      cfg.RequestTimeout,
		Rate:         cfg.RequestRate,
		Burst:        cfg.RequestBurst,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		out:      out,
		errOut:   errOut,
		api:      api,
		bus:      events.NewBus(),
		notifier: notify.NewTracker(notify.NewConsole(out)),
		chatHub:  chat.NewHub(cfg.ChatProviderURL, cfg.ProviderAPIKey),
		videoHub: video.NewHub(cfg.VideoProviderURL, cfg.ProviderAPIKey),
	}, nil
}

func (a *app) shutdown() {
	a.chatHub.Shutdown()
	a.videoHub.Shutdown()
	a.api.Close()
	logx.Debug("Client stopped.")
}

func (a *app) run(ctx context.Context, args []string, startCall bool) int {
	if len(args) == 0 {
		return exitUsage
	}

	a.notifier.Reset()

	var err error
	switch cmd, rest := args[0], args[1:]; {
	case cmd == "incoming" && len(rest) == 0:
		err = a.listRequests(ctx, feed.Incoming)
	case cmd == "outgoing" && len(rest) == 0:
		err = a.listRequests(ctx, feed.Outgoing)
	case cmd == "friends" && len(rest) == 0:
		err = a.listUsers(ctx, feed.NewFriends(a.api, a.feedOptions()...), "No friends yet.")
	case cmd == "recommended" && len(rest) == 0:
		err = a.listUsers(ctx, feed.NewRecommended(a.api, a.feedOptions()...), "No recommendations right now.")
	case cmd == "accept" && len(rest) == 1:
		err = a.mutate(ctx, rest[0], true)
	case cmd == "reject" && len(rest) == 1:
		err = a.mutate(ctx, rest[0], false)
	case cmd == "chat" && len(rest) >= 1:
		err = a.chat(ctx, rest[0], strings.Join(rest[1:], " "), startCall)
	case cmd == "call" && len(rest) == 1:
		err = a.call(ctx, rest[0])
	case cmd == "signout" && len(rest) == 0:
		err = a.signOut(ctx)
	default:
		return exitUsage
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		logx.Info("Command interrupted.")
		return exitOK
	default:
		logx.Logger().Debug().Err(err).Int("code", errs.Code(err)).Msg("Command failed")
		if !a.notifier.Reported() {
			fmt.Fprintf(a.errOut, "%s\n", errs.Message(err))
		}
		return exitError
	}
}

func (a *app) feedOptions() []feed.Option {
	return []feed.Option{feed.WithNotifier(a.notifier)}
}

func (a *app) newRequests(dir feed.Direction) *feed.Paginator[feed.FriendRequest] {
	opts := a.feedOptions()
	if dir == feed.Outgoing {
		opts = append(opts, feed.WithPageSize(a.cfg.OutgoingPerPage))
	}
	return feed.NewRequests(a.api, dir, opts...)
}

func (a *app) listUsers(ctx context.Context, p *feed.Paginator[user.User], empty string) error {
	defer p.Bind(a.bus)()

	users, err := p.Drain(ctx)
	if err != nil {
		return err
	}

	if p.State().Empty {
		fmt.Fprintln(a.out, empty)
		return nil
	}

	for _, u := range users {
		fmt.Fprintf(a.out, "%s\t%s\t%s -> %s\n", u.ID, nameOf(u), u.NativeLanguage, u.LearningLanguage)
	}
	return nil
}

func (a *app) listRequests(ctx context.Context, dir feed.Direction) error {
	p := a.newRequests(dir)
	defer p.Bind(a.bus)()

	items, err := p.Drain(ctx)
	if err != nil {
		return err
	}

	if p.State().Empty {
		fmt.Fprintln(a.out, "No pending friend requests.")
		return nil
	}

	for _, r := range items {
		u := r.Counterparty(dir)
		fmt.Fprintf(a.out, "%s\t%s\t%s -> %s\n", r.ID, nameOf(u), u.NativeLanguage, u.LearningLanguage)
	}
	return nil
}

// mutate accepts or rejects requestID and prints the refreshed incoming feed size.
func (a *app) mutate(ctx context.Context, requestID string, accept bool) error {
	incoming := a.newRequests(feed.Incoming)
	defer incoming.Bind(a.bus)()

	items, err := incoming.Drain(ctx)
	if err != nil {
		return err
	}

	target := feed.FriendRequest{ID: requestID}
	for _, r := range items {
		if r.ID == requestID {
			target = r
			break
		}
	}

	manager := friendreq.NewManager(a.api, a.bus, friendreq.WithNotifier(a.notifier))
	if accept {
		err = manager.Accept(ctx, target)
	} else {
		err = manager.Reject(ctx, target)
	}
	if err != nil && !errs.Is(err, errs.ErrConflict) {
		return err
	}

	remaining, rerr := incoming.Drain(ctx)
	if rerr != nil {
		return rerr
	}
	fmt.Fprintf(a.out, "%d pending friend requests remaining.\n", len(remaining))

	return err
}

func (a *app) localUser(ctx context.Context) (user.User, error) {
	if a.cfg.LocalUserID == "" {
		return user.User{}, errs.Wrap(errs.ErrInvalidParams, errors.New("LOCAL_USER_ID is not set"))
	}
	return a.api.GetUser(ctx, a.cfg.LocalUserID)
}

func (a *app) chat(ctx context.Context, peerID, text string, startCall bool) error {
	local, err := a.localUser(ctx)
	if err != nil {
		return err
	}

	s, err := session.NewBootstrapper(a.api, a.chatHub).Bootstrap(ctx, local, peerID)
	if errs.Is(err, errs.ErrNotFound) {
		fmt.Fprintf(a.out, "User %s was not found.\n", peerID)
		return nil
	}
	if err != nil {
		return err
	}

	messages := s.Channel.Messages()
	history, err := s.Watch(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Chatting with %s in %s\n", nameOf(s.Peer), s.ChannelID)
	for _, m := range history {
		a.printMessage(s, m)
	}

	switch {
	case startCall:
		m, err := s.StartCall(ctx, a.cfg.AppOrigin)
		if err != nil {
			return err
		}
		a.printMessage(s, m)
		return nil
	case text != "":
		m, err := s.Send(ctx, text)
		if err != nil {
			return err
		}
		a.printMessage(s, m)
		return nil
	}

	for {
		select {
		case m, ok := <-messages:
			if !ok {
				return errs.NewError(errs.ErrProviderClosed)
			}
			a.printMessage(s, m)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *app) printMessage(s *session.ChatSession, m chat.Message) {
	from := nameOf(s.Local)
	if m.UserID == s.Peer.ID {
		from = nameOf(s.Peer)
	}
	fmt.Fprintf(a.out, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.Kitchen), from, m.Text)
}

func (a *app) call(ctx context.Context, callID string) error {
	local, err := a.localUser(ctx)
	if err != nil {
		return err
	}

	s, err := call.NewBootstrapper(a.api, a.videoHub).Bootstrap(ctx, local, callID)
	if err != nil {
		return err
	}

	states := s.States()
	for {
		select {
		case state, ok := <-states:
			if !ok {
				fmt.Fprintln(a.out, "Call ended.")
				return nil
			}
			fmt.Fprintf(a.out, "Call %s: %s\n", callID, state)

		case <-ctx.Done():
			leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Leave(leaveCtx); err != nil {
				logx.Warn("Failed to leave call cleanly.", "call_id", callID, "error", err.Error())
			}
			fmt.Fprintln(a.out, "Call ended.")
			return nil
		}
	}
}

func (a *app) signOut(ctx context.Context) error {
	msg, err := a.api.SignOut(ctx)
	if err != nil {
		return err
	}

	a.chatHub.Release()
	a.videoHub.Release()
	a.bus.Invalidate(events.IncomingRequests, events.OutgoingRequests, events.Friends, events.Recommended)

	a.notifier.Success(msg)
	return nil
}

func nameOf(u user.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.ID
}
