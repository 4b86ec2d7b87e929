package bus

import "testing"

func TestKafkaGroupFor(t *testing.T) {
	tests := []struct {
		name string
		opts []KafkaOption
		key  string
		want string
	}{
		{"shared by default", nil, "airtel.outbound", "ugate"},
		{"fan-out topic", []KafkaOption{WithFanOut("host-a", "airtel.outbound")}, "airtel.outbound", "ugate-host-a"},
		{"other topic stays shared", []KafkaOption{WithFanOut("host-a", "airtel.outbound")}, "airtel.inbound", "ugate"},
		{"no replica id", []KafkaOption{WithFanOut("", "airtel.outbound")}, "airtel.outbound", "ugate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newKafkaBroker("ugate", 1, nil, tt.opts...)
			if got := b.groupFor(tt.key); got != tt.want {
				t.Errorf("groupFor(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}
