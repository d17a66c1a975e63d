package session

import (
	"context"
	"errors"

	"github.com/DoyleJ11/tablesync/internal/engine"
	"github.com/DoyleJ11/tablesync/internal/store"
)

var ErrClosed = errors.New("session closed")

// Send delivers m unless the session has stopped.
func (s *Session) Send(ctx context.Context, m Msg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) View(ctx context.Context) (store.View, error) {
	reply := make(chan store.View, 1)
	if err := s.Send(ctx, GetView{Reply: reply}); err != nil {
		return store.View{}, err
	}
	return await(ctx, s.done, reply)
}

func (s *Session) State(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	if err := s.Send(ctx, GetState{Reply: reply}); err != nil {
		return State{}, err
	}
	return await(ctx, s.done, reply)
}

// Submit returns nil once the action is on its way.
func (s *Session) Submit(ctx context.Context, req engine.ActionRequest) error {
	reply := make(chan error, 1)
	if err := s.Send(ctx, SubmitAction{Req: req, Reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, s.done, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

func await[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
