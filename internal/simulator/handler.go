package simulator

import (
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/projecta-dev/projecta/internal/logging"
	"github.com/projecta-dev/projecta/internal/protocol"
)

// maxInboundPacket is the largest packet a client ever sends
const maxInboundPacket = protocol.StepperMoveToSize

// Steppers returns a snapshot of the simulated motors
func (s *Simulator) Steppers() []protocol.StepperInfo {
	return s.bank.snapshot()
}

// respondToProbes answers discovery probes until the socket is closed
func (s *Simulator) respondToProbes() {
	reply, err := protocol.BuildDiscoveryResponse(s.ControlPort(), s.config.Name)
	if err != nil {
		logging.Error("Cannot build discovery response", zap.Error(err))
		return
	}

	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		n, from, err := s.udp.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logging.Error("Discovery responder stopped", zap.Error(err))
			}
			return
		}

		if err := protocol.ParseProbe(buf[:n]); err != nil {
			logging.LogDatagram(from, "ignored", buf[:n], err.Error())
			continue
		}

		if _, err := s.udp.WriteTo(reply, from); err != nil {
			logging.Warn("Failed to answer probe", zap.String("remote_addr", from.String()), zap.Error(err))
			continue
		}
		logging.LogDatagram(from, "sent", reply, "discovery response")
	}
}

func (s *Simulator) acceptConnections() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logging.Error("Failed to accept connection", zap.Error(err))
			}
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection runs one control session: handshake, then commands
func (s *Simulator) handleConnection(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()

	s.conns.Store(remoteAddr, conn)
	if s.closed.Load() {
		_ = conn.Close()
	}
	defer func() {
		_ = conn.Close()
		s.conns.Delete(remoteAddr)
		logging.LogConnection(remoteAddr, "connection_closed")
	}()

	logging.LogConnection(remoteAddr, "connection_accepted")

	if !s.handshake(conn, remoteAddr) {
		return
	}

	for {
		pkt, err := protocol.ReadPacket(conn, maxInboundPacket)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logging.Warn("Control read failed", zap.String("remote_addr", remoteAddr), zap.Error(err))
			}
			return
		}

		if err := s.dispatch(conn, remoteAddr, pkt); err != nil {
			logging.Warn("Dropping control connection", zap.String("remote_addr", remoteAddr), zap.Error(err))
			return
		}
	}
}

func (s *Simulator) handshake(conn net.Conn, remoteAddr string) bool {
	pkt, err := protocol.ReadPacket(conn, maxInboundPacket)
	if err != nil {
		logging.Warn("Handshake read failed", zap.String("remote_addr", remoteAddr), zap.Error(err))
		return false
	}

	decoded, err := protocol.Decode(pkt)
	if err != nil {
		logging.Warn("Bad handshake packet", zap.String("remote_addr", remoteAddr), zap.Error(err))
		return false
	}
	if _, ok := decoded.(*protocol.ConnectionRequest); !ok {
		logging.Warn("Expected connection request",
			zap.String("remote_addr", remoteAddr),
			zap.Stringer("opcode", decoded.Opcode()),
		)
		return false
	}

	if s.config.RejectConnections {
		_, _ = conn.Write(protocol.BuildConnectionRejected())
		logging.LogConnection(remoteAddr, "handshake_rejected")
		return false
	}

	if _, err := conn.Write(protocol.BuildConnectionApproved()); err != nil {
		return false
	}
	logging.LogConnection(remoteAddr, "handshake_approved")
	return true
}

// dispatch handles one command packet. An error ends the session.
func (s *Simulator) dispatch(conn net.Conn, remoteAddr string, pkt []byte) error {
	decoded, err := protocol.Decode(pkt)
	if err != nil {
		return err
	}
	logging.LogPacket(remoteAddr, "received", decoded.Opcode(), pkt, zap.Stringer("summary", protocol.Summary(pkt)))

	switch p := decoded.(type) {
	case *protocol.StepperMoveTo:
		if !s.bank.moveTo(p.Stepper, p.Position) {
			logging.Debug("Move for unknown stepper ignored", zap.Uint8("stepper", p.Stepper))
		}

	case *protocol.StepperEnableDisable:
		if !s.bank.setEnabled(p.Stepper, p.Enabled) {
			logging.Debug("Enable for unknown stepper ignored", zap.Uint8("stepper", p.Stepper))
		}

	case *protocol.StepperInfoRequest:
		reply, err := protocol.BuildStepperInfoResponse(s.bank.snapshot())
		if err != nil {
			return err
		}
		if _, err := conn.Write(reply); err != nil {
			return err
		}
		logging.LogPacket(remoteAddr, "sent", protocol.OpStepperInfoResponse, reply, zap.Stringer("summary", protocol.Summary(reply)))

	default:
		logging.Debug("Ignoring unexpected packet",
			zap.String("remote_addr", remoteAddr),
			zap.Stringer("opcode", decoded.Opcode()),
		)
	}

	return nil
}
