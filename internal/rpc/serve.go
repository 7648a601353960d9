package rpc

import (
	"context"
	"errors"

	"github.com/danmuck/typechan/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Handler turns one request into reply values.
type Handler func(ctx context.Context, req []any) ([]any, error)

// Serve answers requests with handler until the client sends EOF, the
// handler fails, or ctx is done. The context is checked between requests
// only; a blocked receive is not interrupted. On client EOF the server
// forwards EOF on the reply channel and Serve returns nil.
func Serve(ctx context.Context, s *Server, handler Handler) error {
	served := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, err := s.ReceiveRequestValues()
		if errors.Is(err, protocol.ErrEOF) {
			log.Debug().Str("rpc", s.Name()).Int("served", served).Msg("client finished")
			return s.SendEOF()
		}
		if err != nil {
			return err
		}
		reply, err := handler(ctx, req)
		if err != nil {
			log.Error().Err(err).Str("rpc", s.Name()).Msg("handler failed")
			return err
		}
		if err := s.SendReply(reply); err != nil {
			return err
		}
		served++
	}
}
