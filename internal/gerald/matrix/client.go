// Package matrix connects Gerald to Matrix rooms through mautrix-go. Every
// text message from a joined room is converted to an envelope.Message and
// handed to the bot; replies go out as plain m.text events.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/gerald/common/spec/envelope"
)

// Config holds the Matrix connection parameters.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are joined on start. Invites to other rooms are accepted only
	// when AcceptInvites is set.
	Rooms         []string
	AcceptInvites bool
	BotName       string
	// SyncState persists the sync token. When nil, history replays on
	// every restart and messages older than the client are dropped.
	SyncState SyncKV
	Log       zerolog.Logger
}

// MessageHandler is called for each converted message on its own goroutine.
type MessageHandler func(ctx context.Context, msg *envelope.Message)

// Client is the bot's Matrix connection.
type Client struct {
	mxc     *mautrix.Client
	cfg     Config
	self    id.UserID
	started time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a client but does not start syncing.
func New(cfg Config) (*Client, error) {
	mxc, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("create matrix client: %w", err)
	}
	mxc.Log = cfg.Log
	if cfg.SyncState != nil {
		mxc.Store = NewDBSyncStore(cfg.SyncState)
	} else {
		slog.Warn("matrix sync store: none configured, history will replay on restart")
	}
	return &Client{
		mxc:    mxc,
		cfg:    cfg,
		self:   id.UserID(cfg.UserID),
		stopCh: make(chan struct{}),
	}, nil
}

// Start joins the configured rooms and begins the sync loop, reconnecting
// with exponential back-off on errors.
func (c *Client) Start(ctx context.Context, handler MessageHandler) error {
	slog.Warn("Matrix E2EE is not enabled; messages are in plaintext")
	c.started = time.Now()

	syncer, ok := c.mxc.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix: unexpected syncer type")
	}
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		c.dispatch(ctx, evt, handler)
	})
	syncer.OnEventType(event.StateMember, c.handleMembership)

	for _, room := range c.cfg.Rooms {
		if err := c.join(ctx, id.RoomID(room)); err != nil {
			slog.Warn("could not join room", "room", room, "err", err)
		}
	}

	c.wg.Add(1)
	go c.syncLoop(ctx)
	return nil
}

func (c *Client) syncLoop(ctx context.Context) {
	defer c.wg.Done()
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		err := c.mxc.SyncWithContext(ctx)
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		if err == nil {
			return
		}
		slog.Error("matrix sync error; reconnecting", "err", err, "backoff", backoff)
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func (c *Client) dispatch(ctx context.Context, evt *event.Event, handler MessageHandler) {
	if evt.Sender == c.self {
		return
	}
	if c.cfg.SyncState == nil && time.UnixMilli(evt.Timestamp).Before(c.started) {
		return
	}
	msg, ok := ToMessage(evt, c.self, c.cfg.BotName)
	if !ok {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		handler(ctx, msg)
	}()
}

func (c *Client) handleMembership(ctx context.Context, evt *event.Event) {
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite {
		return
	}
	if evt.GetStateKey() != c.self.String() {
		return
	}
	if !c.cfg.AcceptInvites && !c.roomConfigured(evt.RoomID) {
		slog.Info("ignoring invite", "room", evt.RoomID, "inviter", evt.Sender)
		return
	}
	if err := c.join(ctx, evt.RoomID); err != nil {
		slog.Warn("could not accept invite", "room", evt.RoomID, "err", err)
	}
}

func (c *Client) roomConfigured(room id.RoomID) bool {
	for _, r := range c.cfg.Rooms {
		if id.RoomID(r) == room {
			return true
		}
	}
	return false
}

// Stop halts the sync loop and waits for in-flight handlers.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mxc.StopSync()
	})
	c.wg.Wait()
}

// SendText sends a plain-text m.text message to channelID.
func (c *Client) SendText(ctx context.Context, channelID, text string) error {
	_, err := c.mxc.SendText(ctx, id.RoomID(channelID), text)
	return err
}

// join joins a room, tolerating M_FORBIDDEN for rooms already joined.
func (c *Client) join(ctx context.Context, roomID id.RoomID) error {
	_, err := c.mxc.JoinRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("join: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	slog.Info("joined room", "room", roomID)
	return nil
}

// UserID returns the bot's Matrix user ID.
func (c *Client) UserID() string { return c.cfg.UserID }
