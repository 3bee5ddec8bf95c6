package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New[string, int](time.Minute)
	if _, ok := c.Get("missing"); ok {
		t.Fatal("hit on empty cache")
	}
	c.SetTTL("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get = %v, %v", v, ok)
	}
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("hit after delete")
	}
}

func TestExpiry(t *testing.T) {
	c := New[string, string](time.Minute)
	c.Set("a", "v", time.Now().Add(-time.Second))
	if _, ok := c.Get("a"); ok {
		t.Fatal("expired entry served")
	}
	c.Set("b", "v", time.Now().Add(time.Hour))
	if _, ok := c.Get("b"); !ok {
		t.Fatal("live entry missed")
	}
}
