package fchecker

import (
	"context"
	"testing"
	"time"
)

func startMonitor(t *testing.T, ctx context.Context, remote string, thresh uint8) <-chan FailureDetected {
	t.Helper()
	notifyCh, err := Monitor(ctx, MonitorConfig{
		HBeatLocalIPHBeatLocalPort:   "127.0.0.1:0",
		HBeatRemoteIPHBeatRemotePort: remote,
		EpochNonce:                   42,
		LostMsgThresh:                thresh,
		ServerId:                     7,
		RTT:                          40 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	return notifyCh
}

func TestLiveResponderIsNotReported(t *testing.T) {
	responder, err := Respond("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	defer responder.Close()

	ctx, cancel := context.WithCancel(context.Background())
	notifyCh := startMonitor(t, ctx, responder.Addr(), 3)

	select {
	case failure, ok := <-notifyCh:
		if ok {
			t.Fatalf("live responder reported as failed: %+v", failure)
		}
		t.Fatal("monitor stopped on its own")
	case <-time.After(400 * time.Millisecond):
	}

	cancel()
	select {
	case _, ok := <-notifyCh:
		if ok {
			t.Error("cancelled monitor reported a failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}

func TestStoppedResponderIsReported(t *testing.T) {
	responder, err := Respond("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	addr := responder.Addr()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyCh := startMonitor(t, ctx, addr, 2)

	time.Sleep(100 * time.Millisecond)
	responder.Close()

	select {
	case failure, ok := <-notifyCh:
		if !ok {
			t.Fatal("notify channel closed without a failure")
		}
		if failure.ServerId != 7 || failure.UDPIpPort != addr {
			t.Errorf("failure = %+v", failure)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stopped responder never reported")
	}

	if _, ok := <-notifyCh; ok {
		t.Error("more than one failure reported")
	}
}

func TestMonitorRejectsZeroThreshold(t *testing.T) {
	if _, err := Monitor(context.Background(), MonitorConfig{
		HBeatLocalIPHBeatLocalPort:   "127.0.0.1:0",
		HBeatRemoteIPHBeatRemotePort: "127.0.0.1:9",
	}); err == nil {
		t.Error("expected an error for LostMsgThresh 0")
	}
}
