/*
Package fchecker is a UDP heartbeat failure checker.

A monitored node runs a Responder that acks every heartbeat it receives. A
monitoring node runs Monitor against that address and is notified once
LostMsgThresh consecutive heartbeats go unacknowledged. Detection is only a
suspicion: the caller decides what, if anything, to do about it.
*/
package fchecker

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

const (
	DefaultRTT    = 3 * time.Second
	maxPacketSize = 1024
)

// Heartbeat message.
type HBeatMessage struct {
	EpochNonce uint64 // Identifies this fchecker instance/epoch.
	SeqNum     uint64 // Unique for each heartbeat in an epoch.
}

// An ack message; response to a heartbeat.
type AckMessage struct {
	HBEatEpochNonce uint64 // Copy of what was received in the heartbeat.
	HBEatSeqNum     uint64 // Copy of what was received in the heartbeat.
}

// Notification of a failure.
type FailureDetected struct {
	UDPIpPort string    // The RemoteIP:RemotePort of the failed node.
	ServerId  uint32    // Id of the failed node, as given to Monitor.
	Timestamp time.Time // The time when the failure was detected.
}

type MonitorConfig struct {
	HBeatLocalIPHBeatLocalPort   string
	HBeatRemoteIPHBeatRemotePort string
	EpochNonce                   uint64
	LostMsgThresh                uint8
	ServerId                     uint32
	// RTT is how long to wait for each ack. Zero means DefaultRTT.
	RTT time.Duration
}

func encode(msg interface{}) ([]byte, error) {
	var msgBuf bytes.Buffer
	if err := gob.NewEncoder(&msgBuf).Encode(msg); err != nil {
		return nil, err
	}
	return msgBuf.Bytes(), nil
}

func decode(data []byte, msg interface{}) error {
	return gob.NewDecoder(bytes.NewBuffer(data)).Decode(msg)
}

// Responder acks heartbeats on a local UDP address.
type Responder struct {
	conn *net.UDPConn
	wg   sync.WaitGroup
}

func Respond(ackLocalIPAckLocalPort string) (*Responder, error) {
	addr, err := net.ResolveUDPAddr("udp", ackLocalIPAckLocalPort)
	if err != nil {
		return nil, fmt.Errorf("fcheck: resolve ack address %v: %w", ackLocalIPAckLocalPort, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("fcheck: listen for heartbeats on %v: %w", addr, err)
	}

	r := &Responder{conn: conn}
	r.wg.Add(1)
	go r.respondRoutine()
	return r, nil
}

// Addr is the address monitors should send heartbeats to.
func (r *Responder) Addr() string {
	return r.conn.LocalAddr().String()
}

func (r *Responder) Close() error {
	err := r.conn.Close()
	r.wg.Wait()
	return err
}

func (r *Responder) respondRoutine() {
	defer r.wg.Done()
	buf := make([]byte, maxPacketSize)
	for {
		n, srcAddr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Printf("fcheck: respondRoutine: read error: %v\n", err)
			}
			return
		}

		var hBeat HBeatMessage
		if err := decode(buf[:n], &hBeat); err != nil {
			log.Printf("fcheck: respondRoutine: dropping undecodable heartbeat: %v\n", err)
			continue
		}

		ack, err := encode(AckMessage{
			HBEatEpochNonce: hBeat.EpochNonce,
			HBEatSeqNum:     hBeat.SeqNum,
		})
		if err != nil {
			log.Printf("fcheck: respondRoutine: encode error: %v\n", err)
			continue
		}
		if _, err := r.conn.WriteToUDP(ack, srcAddr); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("fcheck: respondRoutine: UDP write error: %v\n", err)
		}
	}
}

// Monitor sends heartbeats to a remote Responder until ctx is done or the
// remote is declared failed. At most one FailureDetected is ever sent, after
// which the channel is closed.
func Monitor(ctx context.Context, arg MonitorConfig) (<-chan FailureDetected, error) {
	if arg.LostMsgThresh == 0 {
		return nil, errors.New("fcheck: LostMsgThresh must be at least 1")
	}
	localAddr, err := net.ResolveUDPAddr("udp", arg.HBeatLocalIPHBeatLocalPort)
	if err != nil {
		return nil, fmt.Errorf("fcheck: resolve local address: %w", err)
	}
	remoteAddr, err := net.ResolveUDPAddr("udp", arg.HBeatRemoteIPHBeatRemotePort)
	if err != nil {
		return nil, fmt.Errorf("fcheck: resolve remote address: %w", err)
	}
	conn, err := net.DialUDP("udp", localAddr, remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("fcheck: UDP dial %v: %w", remoteAddr, err)
	}

	if arg.RTT <= 0 {
		arg.RTT = DefaultRTT
	}
	notifyCh := make(chan FailureDetected, 1)

	// closing the socket unblocks the read in monitorRoutine
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		conn.Close()
	}()

	go func() {
		defer close(stop)
		defer close(notifyCh)
		monitorRoutine(ctx, arg, conn, notifyCh)
	}()
	return notifyCh, nil
}

func monitorRoutine(
	ctx context.Context, arg MonitorConfig, conn *net.UDPConn,
	notifyCh chan<- FailureDetected,
) {
	log.Printf(
		"fcheck for server %v: monitorRoutine: beginning to monitor %v from %v\n",
		arg.ServerId, conn.RemoteAddr(), conn.LocalAddr(),
	)

	lostMsgs := uint8(0) // consecutive heartbeats not acked within RTT
	seqNum := uint64(0)
	buf := make([]byte, maxPacketSize)

	for {
		hbeat, err := encode(HBeatMessage{EpochNonce: arg.EpochNonce, SeqNum: seqNum})
		if err != nil {
			log.Printf("fcheck: monitorRoutine: encode error: %v\n", err)
			return
		}
		if _, err := conn.Write(hbeat); err != nil && ctx.Err() != nil {
			return
		}

		acked := awaitAck(conn, arg, seqNum, buf)
		if ctx.Err() != nil {
			return
		}
		if acked {
			lostMsgs = 0
		} else {
			lostMsgs++
			if lostMsgs >= arg.LostMsgThresh {
				log.Printf(
					"fcheck for server %v: monitorRoutine: failure detected after %d lost heartbeats\n",
					arg.ServerId, lostMsgs,
				)
				notifyCh <- FailureDetected{
					UDPIpPort: arg.HBeatRemoteIPHBeatRemotePort,
					ServerId:  arg.ServerId,
					Timestamp: time.Now(),
				}
				return
			}
		}
		seqNum++
	}
}

// awaitAck reads until the ack for seqNum arrives or the RTT window closes.
// Stale acks and acks from other epochs are skipped. Read errors such as a
// refused port count as a lost heartbeat.
func awaitAck(conn *net.UDPConn, arg MonitorConfig, seqNum uint64, buf []byte) bool {
	deadline := time.Now().Add(arg.RTT)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return false
	}
	for {
		n, err := conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return false
			}
			// wait out the window so a refused port is not retried in a hot loop
			time.Sleep(time.Until(deadline))
			return false
		}
		var ack AckMessage
		if err := decode(buf[:n], &ack); err != nil {
			continue
		}
		if ack.HBEatEpochNonce == arg.EpochNonce && ack.HBEatSeqNum == seqNum {
			// pace heartbeats to one per RTT
			time.Sleep(time.Until(deadline))
			return true
		}
	}
}
