package runctx

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecvWithin_Value(t *testing.T) {
	in := make(chan int, 1)
	in <- 7
	got, ok, err := RecvWithin(context.Background(), in, time.Second)
	if err != nil || !ok || got != 7 {
		t.Fatalf("RecvWithin() = (%d, %v, %v), want (7, true, nil)", got, ok, err)
	}
}

func TestRecvWithin_Closed(t *testing.T) {
	in := make(chan string)
	close(in)
	got, ok, err := RecvWithin(context.Background(), in, 0)
	if err != nil || ok || got != "" {
		t.Fatalf("RecvWithin() = (%q, %v, %v), want zero value and !ok", got, ok, err)
	}
}

func TestRecvWithin_Idle(t *testing.T) {
	in := make(chan int)
	_, ok, err := RecvWithin(context.Background(), in, 20*time.Millisecond)
	if !errors.Is(err, ErrIdle) || ok {
		t.Fatalf("RecvWithin() = (%v, %v), want ErrIdle", ok, err)
	}
}

func TestRecvWithin_CanceledWithoutIdleLimit(t *testing.T) {
	in := make(chan int)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, _, err := RecvWithin(ctx, in, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RecvWithin() error = %v, want context.Canceled", err)
	}
}
