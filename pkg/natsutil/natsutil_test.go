package natsutil

import (
	"testing"

	"github.com/nats-io/nats.go"
)

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{Subject: "gallery.image.new"}
	c := (*headerCarrier)(msg)

	if got := c.Get("traceparent"); got != "" {
		t.Fatalf("empty carrier returned %q", got)
	}
	if keys := c.Keys(); keys != nil {
		t.Fatalf("empty carrier keys = %v", keys)
	}

	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("Get = %q", got)
	}
	if keys := c.Keys(); len(keys) != 1 {
		t.Fatalf("keys = %v", keys)
	}
}

func TestExtract_NoHeaders(t *testing.T) {
	ctx := Extract(&nats.Msg{Subject: "x"})
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	if err := ctx.Err(); err != nil {
		t.Fatalf("fresh context has err %v", err)
	}
}
