// Package engine implements the command loop answering the block requests of the remote
// disk driver.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aligator/serialdisk"
	"github.com/aligator/serialdisk/checkpoint"
	"github.com/aligator/serialdisk/protocol"
	log "github.com/sirupsen/logrus"
)

// Device is the part of the volume the remote driver can reach.
//
// Generated mock using mockgen:
//
//	mockgen -source=engine.go -destination=device_mock_test.go -package engine
type Device interface {
	Layout() serialdisk.Layout
	ReadSectors(start serialdisk.Sector, count int) ([]byte, error)
	WriteSectors(start serialdisk.Sector, data []byte) error
	MediaParameters() serialdisk.MediaParameters
	AcknowledgeMediaChange() bool
}

// State is the position of the engine in its command cycle.
type State uint8

const (
	// Idle waits for the next frame.
	Idle State = iota
	// Dispatch identifies the command of a received frame.
	Dispatch
	// Executing runs the command against the volume.
	Executing
	// Responding sends the reply.
	Responding
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Dispatch:
		return "Dispatch"
	case Executing:
		return "Executing"
	case Responding:
		return "Responding"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// maxSectorBytes limits the sector data of a single request, so that every reply fits into a
// frame.
const maxSectorBytes = protocol.MaxPayload - 64

// Engine processes one command at a time. It is not safe for concurrent use.
type Engine struct {
	device    Device
	threshold int
	state     State

	commands int
}

// Option configures an Engine.
type Option func(e *Engine)

// WithCompressionThreshold sets the smallest reply which is sent compressed.
// 0 disables compression.
func WithCompressionThreshold(threshold int) Option {
	return func(e *Engine) {
		e.threshold = threshold
	}
}

// New creates an engine serving device.
func New(device Device, opts ...Option) *Engine {
	e := &Engine{
		device:    device,
		threshold: protocol.DefaultCompressionThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current state.
func (e *Engine) State() State {
	return e.state
}

// Commands returns how many commands were processed.
func (e *Engine) Commands() int {
	return e.commands
}

func (e *Engine) setState(s State) {
	log.WithField("from", e.state).Tracef("State %v", s)
	e.state = s
}

// Serve answers the frames read from rw until the stream ends, which returns nil.
//
// Frames which cannot be decoded are answered with OpInvalid and the session continues. A
// ContractViolation ends the session and is returned. Decode blocks, so the caller has to
// close the link to stop Serve when ctx is canceled.
func (e *Engine) Serve(ctx context.Context, rw io.ReadWriter) error {
	dec := protocol.NewDecoder(rw)
	enc := protocol.NewEncoder(rw, e.threshold)

	for {
		e.setState(Idle)
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := dec.Decode()
		var reply protocol.Reply
		switch {
		case err == nil:
			reply, err = e.Handle(msg)
			if err != nil {
				return err
			}
		case errors.Is(err, protocol.ErrChecksumMismatch):
			log.Warnf("Frame dropped: %v", err)
			reply = protocol.Reply{Op: protocol.OpInvalid, Status: protocol.StatusChecksumMismatch}
		case errors.Is(err, protocol.ErrMalformedPayload):
			log.Warnf("Frame dropped: %v", err)
			reply = protocol.Reply{Op: protocol.OpInvalid, Status: protocol.StatusUnsupported}
		case errors.Is(err, io.EOF):
			return nil
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		e.setState(Responding)
		if err := enc.Encode(reply.Marshal()); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
}

// Handle executes a single request message and returns the reply.
//
// Every recoverable problem ends up as status of the reply. The only error returned is a
// ContractViolation, after which the volume must not be used any more.
func (e *Engine) Handle(msg []byte) (reply protocol.Reply, err error) {
	defer serialdisk.RecoverViolation(&err)

	e.setState(Dispatch)
	e.commands++

	req, err := protocol.ParseRequest(msg)
	if err != nil {
		log.Warnf("Unsupported request: %v", err)
		op := protocol.OpInvalid
		if errors.Is(err, protocol.ErrUnknownOpcode) {
			op = req.Op
		}
		return protocol.Reply{Op: op, Status: protocol.StatusUnsupported}, nil
	}

	e.setState(Executing)
	body, err := e.execute(req)
	if serialdisk.IsContractViolation(err) {
		log.WithField("request", req).Errorf("Volume broken: %v", err)
		return protocol.Reply{}, err
	}

	status := statusFor(err)
	if err != nil {
		log.WithField("request", req).Warnf("Request failed: %v", err)
		body = nil
	} else {
		log.WithField("request", req).Debug("Request done")
	}
	return protocol.Reply{Op: req.Op, Status: status, Body: body}, nil
}

func (e *Engine) execute(req protocol.Request) ([]byte, error) {
	layout := e.device.Layout()
	bps := layout.BytesPerSector

	switch req.Op {
	case protocol.OpReadSectors:
		// The range is checked before anything else, out of range always wins.
		if err := layout.CheckRange(serialdisk.Sector(req.Start), int(req.Count)); err != nil {
			return nil, err
		}
		if int(req.Count)*bps > maxSectorBytes {
			return nil, checkpoint.Wrapf(protocol.ErrPayloadTooLarge, "%d sectors in one request", req.Count)
		}
		return e.device.ReadSectors(serialdisk.Sector(req.Start), int(req.Count))

	case protocol.OpWriteSectors:
		if err := layout.CheckRange(serialdisk.Sector(req.Start), int(req.Count)); err != nil {
			return nil, err
		}
		if len(req.Data) != int(req.Count)*bps {
			return nil, checkpoint.Wrapf(serialdisk.ErrInvalidSectorData, "%d bytes for %d sectors", len(req.Data), req.Count)
		}
		return nil, e.device.WriteSectors(serialdisk.Sector(req.Start), req.Data)

	case protocol.OpGetMediaParameters:
		return protocol.EncodeMediaParameters(e.device.MediaParameters()), nil

	case protocol.OpMediaChangeAck:
		if e.device.AcknowledgeMediaChange() {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	default:
		return nil, checkpoint.Wrapf(protocol.ErrUnknownOpcode, "%v", req.Op)
	}
}

// statusFor maps recoverable errors to reply statuses.
func statusFor(err error) protocol.Status {
	switch {
	case err == nil:
		return protocol.StatusOk
	case errors.Is(err, serialdisk.ErrAddressOutOfRange):
		return protocol.StatusAddressOutOfRange
	case errors.Is(err, serialdisk.ErrOutOfSpace):
		return protocol.StatusOutOfSpace
	case errors.Is(err, serialdisk.ErrVolumeTooLarge):
		return protocol.StatusVolumeTooLarge
	case errors.Is(err, protocol.ErrChecksumMismatch):
		return protocol.StatusChecksumMismatch
	default:
		return protocol.StatusUnsupported
	}
}
