package broker

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestAttempt(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"missing header", nil, 1},
		{"int32", amqp.Table{AttemptHeader: int32(2)}, 2},
		{"int64", amqp.Table{AttemptHeader: int64(3)}, 3},
		{"int", amqp.Table{AttemptHeader: 4}, 4},
		{"wrong type", amqp.Table{AttemptHeader: "5"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Attempt(tt.headers); got != tt.want {
				t.Errorf("Attempt() = %d, want %d", got, tt.want)
			}
		})
	}
}
