// Package rpcserver routes decoded wire messages to registered handlers
// and encodes their results back into response/notification frames. It
// knows nothing about PTYs, sessions, or grids — internal/server supplies
// the actual handlers as closures over its own state, keeping this
// package a pure routing table.
package rpcserver

import (
	"fmt"
	"log"

	"github.com/chriswa/ptymuxd/internal/client"
	"github.com/chriswa/ptymuxd/internal/wire"
)

// RPCError is the shape of a request's error slot. Method is free to
// return a plain error instead, in which case it is wrapped as an
// "internal" RPCError so callers always see a consistent error shape
// over the wire.
type RPCError struct {
	Code    string
	Message string
}

func (e *RPCError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func (e *RPCError) toWire() wire.Map {
	return wire.Map{
		{Key: "code", Value: e.Code},
		{Key: "message", Value: e.Message},
	}
}

// RequestHandler answers one RPC request with a result or an error.
type RequestHandler func(c *client.Client, params wire.Array) (result any, err error)

// NotificationHandler handles a fire-and-forget notification; there is no
// response to send, successful or otherwise.
type NotificationHandler func(c *client.Client, params wire.Array)

// Dispatcher is a method-name routing table for both directions of
// client-initiated traffic.
type Dispatcher struct {
	requests      map[string]RequestHandler
	notifications map[string]NotificationHandler
	log           *log.Logger
}

// New returns an empty Dispatcher. Register handlers with Handle and
// HandleNotification before calling Dispatch.
func New(logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		requests:      make(map[string]RequestHandler),
		notifications: make(map[string]NotificationHandler),
		log:           logger,
	}
}

// Handle registers a request handler for method.
func (d *Dispatcher) Handle(method string, h RequestHandler) {
	d.requests[method] = h
}

// HandleNotification registers a notification handler for method.
func (d *Dispatcher) HandleNotification(method string, h NotificationHandler) {
	d.notifications[method] = h
}

// Dispatch routes a decoded message to its handler and returns the bytes
// to write back to the client, if any (requests produce a response
// frame; notifications and unroutable messages produce nothing).
func (d *Dispatcher) Dispatch(c *client.Client, msg wire.Message) ([]byte, error) {
	switch msg.Type {
	case wire.TypeRequest:
		return d.dispatchRequest(c, msg)
	case wire.TypeNotification:
		d.dispatchNotification(c, msg)
		return nil, nil
	default:
		if d.log != nil {
			d.log.Printf("rpcserver: %s: unexpected message type %d", c, msg.Type)
		}
		return nil, nil
	}
}

func (d *Dispatcher) dispatchRequest(c *client.Client, msg wire.Message) ([]byte, error) {
	h, ok := d.requests[msg.Method]
	if !ok {
		rpcErr := &RPCError{Code: "unknown_method", Message: msg.Method}
		return wire.EncodeResponse(msg.MsgID, rpcErr.toWire(), nil)
	}

	result, err := h(c, msg.Params)
	if err != nil {
		rpcErr, ok := err.(*RPCError)
		if !ok {
			rpcErr = &RPCError{Code: "internal", Message: err.Error()}
		}
		return wire.EncodeResponse(msg.MsgID, rpcErr.toWire(), nil)
	}
	return wire.EncodeResponse(msg.MsgID, nil, result)
}

func (d *Dispatcher) dispatchNotification(c *client.Client, msg wire.Message) {
	h, ok := d.notifications[msg.Method]
	if !ok {
		if d.log != nil {
			d.log.Printf("rpcserver: %s: unknown notification %q", c, msg.Method)
		}
		return
	}
	h(c, msg.Params)
}
