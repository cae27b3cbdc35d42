// Package bot routes inbound chat updates to the dialog machine and sends the
// replies back. Updates are sharded by user so each user's turns run in the
// order they arrived while different users are served in parallel.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/doctorbot/doctorbot/internal/dialog"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Update is one inbound chat event, already decoded by the transport.
type Update struct {
	UserID     int64
	ChatID     int64
	CallbackID string
	Event      dialog.Event
	// Err is set instead of Event when the transport could not decode the
	// update, e.g. a button payload from an older bot version.
	Err error
}

// Handler runs dialog turns. *dialog.Machine implements it.
type Handler interface {
	Handle(ctx context.Context, identity int64, ev dialog.Event) (dialog.Reply, error)
	State(identity int64) dialog.State
	// Restore puts identity back into st after a reply could not be delivered.
	Restore(identity int64, st dialog.State)
}

// Sender delivers replies to the chat transport.
type Sender interface {
	Send(ctx context.Context, chatID int64, r dialog.Reply) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Dispatcher fans updates out to per-user shards.
type Dispatcher struct {
	handler     Handler
	sender      Sender
	workers     int
	buffer      int
	turnTimeout time.Duration
	logger      zerolog.Logger
}

func NewDispatcher(h Handler, s Sender, workers int, logger zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		handler:     h,
		sender:      s,
		workers:     workers,
		buffer:      64,
		turnTimeout: 30 * time.Second,
		logger:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

// ---------------------------------------------------------------------------
// Run loop
// ---------------------------------------------------------------------------

// Run consumes updates until the channel closes or ctx is cancelled, then
// waits for the shards to finish. Updates already handed to a shard are still
// processed after cancellation; each turn gets its own time budget.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan Update) error {
	g, ctx := errgroup.WithContext(ctx)

	shards := make([]chan Update, d.workers)
	for i := range shards {
		shards[i] = make(chan Update, d.buffer)
		ch := shards[i]
		g.Go(func() error {
			for u := range ch {
				d.Process(ctx, u)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range shards {
				close(ch)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return nil
			case u, ok := <-updates:
				if !ok {
					return nil
				}
				shard := shards[d.shard(u.UserID)]
				select {
				case shard <- u:
					continue
				default:
				}
				select {
				case shard <- u:
				case <-ctx.Done():
					d.logger.Warn().Int64("user_id", u.UserID).Msg("update dropped at shutdown")
					return nil
				}
			}
		}
	})

	d.logger.Info().Int("workers", d.workers).Msg("dispatcher started")
	err := g.Wait()
	d.logger.Info().Msg("dispatcher stopped")
	return err
}

func (d *Dispatcher) shard(userID int64) int {
	return int(uint64(userID) % uint64(d.workers))
}

// ---------------------------------------------------------------------------
// Turn
// ---------------------------------------------------------------------------

// Process runs one turn synchronously: acknowledge the button, run the
// dialog, send exactly one reply. A failed turn is answered with a short
// explanation and leaves the conversation where it was. So does a reply that
// cannot be delivered. The turn outlives cancellation of ctx for up to the
// turn timeout so shutdown does not fail half-finished conversations.
func (d *Dispatcher) Process(ctx context.Context, u Update) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.turnTimeout)
	defer cancel()

	if u.CallbackID != "" {
		if err := d.sender.AnswerCallback(ctx, u.CallbackID); err != nil {
			d.logger.Warn().Err(err).Int64("user_id", u.UserID).Msg("answer callback failed")
		}
	}

	prev := d.handler.State(u.UserID)
	from := dialog.StateName(prev)
	reply, err := d.turn(ctx, u)
	to := dialog.StateName(d.handler.State(u.UserID))

	kind := "invalid"
	if u.Event != nil {
		kind = u.Event.Kind()
	}

	var ev *zerolog.Event
	switch {
	case err == nil:
		ev = d.logger.Info()
	case dialog.UserFacing(err):
		ev = d.logger.Warn().Err(err)
	default:
		ev = d.logger.Error().Err(err)
	}
	ev.Int64("user_id", u.UserID).
		Str("event", kind).
		Str("from", from).
		Str("to", to).
		Dur("duration", time.Since(start)).
		Msg("turn")

	if err != nil {
		reply = dialog.Reply{Text: dialog.FailureText(err)}
	}
	sendErr := d.sender.Send(ctx, u.ChatID, reply)
	if sendErr == nil {
		return
	}
	d.logger.Error().Err(sendErr).Int64("user_id", u.UserID).Msg("send reply failed")
	if err != nil {
		return
	}

	// The user never saw the new prompt; keep them where they were.
	d.handler.Restore(u.UserID, prev)
	d.logger.Warn().Int64("user_id", u.UserID).Str("state", from).Msg("state restored after failed send")
	if err := d.sender.Send(ctx, u.ChatID, dialog.Reply{Text: dialog.FailureText(sendErr)}); err != nil {
		d.logger.Error().Err(err).Int64("user_id", u.UserID).Msg("send failure notice failed")
	}
}

func (d *Dispatcher) turn(ctx context.Context, u Update) (reply dialog.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in turn: %v", r)
		}
	}()
	if u.Err != nil {
		return dialog.Reply{}, u.Err
	}
	if u.Event == nil {
		return dialog.Reply{}, fmt.Errorf("update from %d has no event", u.UserID)
	}
	return d.handler.Handle(ctx, u.UserID, u.Event)
}
