package controller

import (
	"context"
	"fmt"
)

// RegisterClient adds client to the broadcast set and sends it, in order,
// the universe state, the groups registry and the cues registry. A client
// registered under an existing ID replaces the old one. A StatefulClient
// that is already unregistered is refused with ErrClientGone.
func (c *Controller) RegisterClient(ctx context.Context, client Client) error {
	return c.do(ctx, func() error {
		id := client.ID()
		if sc, ok := client.(StatefulClient); ok && sc.State() == StateUnregistered {
			return fmt.Errorf("%w: %s", ErrClientGone, id)
		}
		c.clients[id] = client
		c.logger.Info("client registered", "client_id", id, "clients", len(c.clients))

		join := []Message{DimmerState{Levels: c.universe.State(), Origin: OriginFull}}
		for _, name := range []string{c.groups.Name(), c.cues.Name()} {
			data, err := c.exportRegistry(name)
			if err != nil {
				delete(c.clients, id)
				return fmt.Errorf("exporting %s: %w", name, err)
			}
			join = append(join, RegistrySnapshot{Name: name, Data: data})
		}

		for _, msg := range join {
			if !c.send(id, client, msg) {
				return fmt.Errorf("%w: %s", ErrClientGone, id)
			}
		}
		c.telemetry.WriteClients(len(c.clients))
		return nil
	})
}

// UnregisterClient removes client from the broadcast set. Unknown clients
// are ignored.
func (c *Controller) UnregisterClient(ctx context.Context, client Client) error {
	return c.do(ctx, func() error {
		c.drop(client.ID(), nil)
		return nil
	})
}

// ClientCount returns the number of registered clients.
func (c *Controller) ClientCount(ctx context.Context) (int, error) {
	var n int
	err := c.do(ctx, func() error {
		n = len(c.clients)
		return nil
	})
	return n, err
}

// broadcast sends msg to every registered client, dropping those that fail.
func (c *Controller) broadcast(msg Message) {
	for id, client := range c.clients {
		c.send(id, client, msg)
	}
}

func (c *Controller) send(id string, client Client, msg Message) bool {
	if err := client.Send(msg); err != nil {
		c.drop(id, err)
		return false
	}
	return true
}

func (c *Controller) drop(id string, cause error) {
	if _, ok := c.clients[id]; !ok {
		return
	}
	delete(c.clients, id)
	if cause != nil {
		c.logger.Warn("client send failed, unregistering", "client_id", id, "error", cause)
	} else {
		c.logger.Info("client unregistered", "client_id", id, "clients", len(c.clients))
	}
	c.telemetry.WriteClients(len(c.clients))
}
