package uds

import (
	"testing"

	kerrors "github.com/axeberg/axebergos/errors"
)

func TestStreamHandshakeAndTransfer(t *testing.T) {
	tbl := NewTable()
	listener := tbl.Socket(Stream)
	if err := tbl.Bind(listener, "/tmp/s.sock"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := listener.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	client := tbl.Socket(Stream)
	if err := tbl.Connect(client, "/tmp/s.sock"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	server, err := listener.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if _, err := client.Send([]byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 8)
	n, err := server.Recv(buf)
	if err != nil || string(buf[:n]) != "hi" {
		t.Fatalf("Recv = (%d, %v) %q, want (2, nil) \"hi\"", n, err, buf[:n])
	}
}

func TestDatagramSendToRecvFrom(t *testing.T) {
	tbl := NewTable()
	a := tbl.Socket(Datagram)
	tbl.Bind(a, "/tmp/a.sock")
	b := tbl.Socket(Datagram)
	tbl.Bind(b, "/tmp/b.sock")

	if err := tbl.SendTo("/tmp/a.sock", "/tmp/b.sock", []byte("ping")); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	buf := make([]byte, 8)
	n, from, err := b.RecvFrom(buf)
	if err != nil || string(buf[:n]) != "ping" || from != "/tmp/a.sock" {
		t.Fatalf("RecvFrom = (%d,%q,%v), want (4,\"/tmp/a.sock\",nil)", n, from, err)
	}
}

func TestConnectUnknownPathFails(t *testing.T) {
	tbl := NewTable()
	client := tbl.Socket(Stream)
	if err := tbl.Connect(client, "/nope"); err != kerrors.ErrNotFound {
		t.Fatalf("Connect to unbound path = %v, want NotFound", err)
	}
}
