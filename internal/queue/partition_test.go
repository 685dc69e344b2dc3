package queue

import "testing"

func TestPartitionIsStable(t *testing.T) {
	t.Parallel()

	got1 := Partition("user-42", 8)
	got2 := Partition("user-42", 8)
	if got1 != got2 {
		t.Errorf("Partition not stable across calls: %d != %d", got1, got2)
	}
	if got1 < 0 || got1 >= 8 {
		t.Errorf("Partition out of range: %d", got1)
	}
}

func TestPartitionDistributesAcrossUsers(t *testing.T) {
	t.Parallel()

	seen := map[int]bool{}
	for i := 0; i < 64; i++ {
		p := Partition(string(rune('a'+i%26))+string(rune('0'+i%10)), 8)
		seen[p] = true
	}
	if len(seen) < 2 {
		t.Errorf("Partition mapped %d distinct user keys onto %d partitions, expected spread", 64, len(seen))
	}
}

func TestPartitionZeroOrNegativeN(t *testing.T) {
	t.Parallel()

	if got := Partition("user-1", 0); got != 0 {
		t.Errorf("Partition(n=0) = %d, want 0", got)
	}
	if got := Partition("user-1", -3); got != 0 {
		t.Errorf("Partition(n=-3) = %d, want 0", got)
	}
}

func TestQueueNameAndRoutingKey(t *testing.T) {
	t.Parallel()

	if got, want := QueueName(3), "order_db_update_queue_partition_3"; got != want {
		t.Errorf("QueueName(3) = %q, want %q", got, want)
	}
	if got, want := RoutingKey(3), "partition_3"; got != want {
		t.Errorf("RoutingKey(3) = %q, want %q", got, want)
	}
}

func TestPriorityOrdering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind string
		want uint8
	}{
		{"ORDER_CLOSE_CONFIRMED", 10},
		{"ORDER_OPEN_CONFIRMED", 8},
		{"ORDER_PENDING_CONFIRMED", 6},
		{"ORDER_PENDING_TRIGGERED", 5},
		{"ORDER_REJECTED", 4},
		{"ORDER_REJECTION_RECORD", 4},
		{"ORDER_CLOSE_ID_UPDATE", 2},
		{"UNKNOWN_KIND", 1},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			t.Parallel()
			if got := Priority(tt.kind); got != tt.want {
				t.Errorf("Priority(%s) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}

	if Priority("ORDER_CLOSE_CONFIRMED") <= Priority("ORDER_OPEN_CONFIRMED") {
		t.Errorf("close priority should outrank open priority")
	}
	if Priority("ORDER_OPEN_CONFIRMED") <= Priority("ORDER_PENDING_TRIGGERED") {
		t.Errorf("open priority should outrank pending-triggered priority")
	}
}
