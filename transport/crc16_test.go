package transport

import "testing"

func TestCRC16(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{"empty", []byte{}, 0x0000},
		{"single zero byte", []byte{0x00}, 0x0000},
		{"single byte", []byte{0x01}, 0x1021},
		{"known vector", []byte("123456789"), 0x31c3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16(tt.data); got != tt.expected {
				t.Errorf("CRC16(%v) = 0x%04X, want 0x%04X", tt.data, got, tt.expected)
			}
		})
	}
}

func TestCRC16UpdateMatchesSplitInput(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

	whole := CRC16(data)

	split := CRC16Update(data[3:], CRC16Update(data[:3], 0))

	if split != whole {
		t.Errorf("CRC16Update over two halves = 0x%04X, want 0x%04X (same as whole buffer)", split, whole)
	}
}

func BenchmarkCRC16(b *testing.B) {
	data := make([]byte, 2048)
	for i := range data {
		data[i] = byte(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CRC16(data)
	}
}
