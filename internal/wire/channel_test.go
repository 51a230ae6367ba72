package wire

import (
	"net"
	"testing"
	"time"
)

func pipeChannels() (*Channel, *Channel) {
	a, b := net.Pipe()
	return New(a, nil), New(b, nil)
}

func TestRequestReplyRoundTrip(t *testing.T) {
	server, client := pipeChannels()
	defer server.Close()
	defer client.Close()

	payload := []byte{1, 2, 3, 4}
	done := make(chan error, 1)
	go func() {
		done <- client.WriteRequest(CmdSessionCreate, payload)
	}()

	cmd, got, err := server.ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if cmd != CmdSessionCreate {
		t.Fatalf("cmd = %v, want %v", cmd, CmdSessionCreate)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload = %v, want %v", got, payload)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	go func() {
		done <- server.WriteReply(Success, []byte{9, 9}, nil)
	}()
	status, reply, err := client.ReadReply(2)
	if err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	if status != Success {
		t.Fatalf("status = %v, want Success", status)
	}
	if len(reply) != 2 || reply[0] != 9 {
		t.Fatalf("reply = %v", reply)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteReply: %v", err)
	}
}

func TestReadRequestUnknownCommand(t *testing.T) {
	server, client := pipeChannels()
	defer server.Close()
	defer client.Close()

	go client.WriteRequest(Command(0xDEADBEEF), nil)

	if _, _, err := server.ReadRequest(); err == nil {
		t.Fatal("expected error for unknown command tag")
	}
}

func TestReadReplySizeMismatch(t *testing.T) {
	server, client := pipeChannels()
	defer server.Close()
	defer client.Close()

	go server.WriteReply(Success, []byte{1, 2, 3}, nil)

	if _, _, err := client.ReadReply(4); err == nil {
		t.Fatal("expected mismatched reply size error")
	}
}

func TestChannelDeadline(t *testing.T) {
	server, client := pipeChannels()
	defer server.Close()
	defer client.Close()

	if err := server.SetDeadline(10 * time.Millisecond); err != nil {
		t.Fatalf("SetDeadline: %v", err)
	}
	if _, _, err := server.ReadRequest(); err == nil {
		t.Fatal("expected deadline to expire with no peer traffic")
	}
}

func TestStatusTransient(t *testing.T) {
	cases := map[Status]bool{
		Success:                    false,
		Timeout:                    true,
		NoImageAvailable:           true,
		PoseNotActive:              true,
		SessionNotCreated:          false,
		SwapchainFlagUnsupported:   true,
		SwapchainFormatUnsupported: true,
		IPCFailure:                 false,
		GPUError:                   false,
	}
	for status, want := range cases {
		if got := status.Transient(); got != want {
			t.Errorf("%v.Transient() = %v, want %v", status, got, want)
		}
	}
}
