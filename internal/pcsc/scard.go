package pcsc

import (
	"errors"
	"fmt"

	"github.com/ebfe/scard"
)

// Establish opens a user-scope context with the PC/SC resource manager.
func Establish() (Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextUnavailable, err)
	}
	return &scardContext{ctx: ctx}, nil
}

type scardContext struct {
	ctx *scard.Context
}

func (c *scardContext) ListReaders() ([]string, error) {
	readers, err := c.ctx.ListReaders()
	if err != nil {
		if errors.Is(err, scard.ErrNoReadersAvailable) {
			return nil, nil
		}
		return nil, err
	}
	return readers, nil
}

func (c *scardContext) Connect(reader string) (Card, error) {
	card, err := c.ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		if isNoCard(err) {
			return nil, fmt.Errorf("%w: %w", ErrNoCard, err)
		}
		return nil, fmt.Errorf("connect %q: %w", reader, err)
	}
	return &scardCard{card: card}, nil
}

func (c *scardContext) ConnectDirect(reader string) (Card, error) {
	card, err := c.ctx.Connect(reader, scard.ShareDirect, scard.ProtocolUndefined)
	if err != nil {
		return nil, fmt.Errorf("connect direct %q: %w", reader, err)
	}
	return &scardCard{card: card}, nil
}

func (c *scardContext) Release() error {
	return c.ctx.Release()
}

type scardCard struct {
	card *scard.Card
}

func (c *scardCard) Transmit(cmd []byte) ([]byte, error) {
	return c.card.Transmit(cmd)
}

func (c *scardCard) Control(code uint32, in []byte) ([]byte, error) {
	return c.card.Control(code, in)
}

func (c *scardCard) Disconnect() error {
	return c.card.Disconnect(scard.LeaveCard)
}

func isNoCard(err error) bool {
	return errors.Is(err, scard.ErrNoSmartcard) ||
		errors.Is(err, scard.ErrRemovedCard) ||
		errors.Is(err, scard.ErrUnpoweredCard) ||
		errors.Is(err, scard.ErrUnresponsiveCard)
}
