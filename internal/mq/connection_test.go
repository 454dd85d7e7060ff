package mq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestConnection_OnHealthChange(t *testing.T) {
	c := &Connection{}

	var seen []bool
	c.OnHealthChange(func(healthy bool) {
		seen = append(seen, healthy)
	})

	c.setHealthy(true)
	c.setHealthy(true)
	c.setHealthy(false)

	want := []bool{false, true, false}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("call %d: got %v, want %v", i, seen[i], want[i])
		}
	}
	if c.IsHealthy() {
		t.Error("connection should report unhealthy")
	}
}

func TestDelivery_Redelivered(t *testing.T) {
	d := &Delivery{Raw: amqp.Delivery{Redelivered: true}}
	if !d.Redelivered() {
		t.Error("expected redelivered delivery")
	}
	if (&Delivery{}).Redelivered() {
		t.Error("fresh delivery should not be redelivered")
	}
}
